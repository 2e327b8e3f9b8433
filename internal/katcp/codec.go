package katcp

import "encoding/json"

// Pack serialises a map into a packed dictionary: a JSON document with
// the whole-string escape applied, safe to carry as a single
// space-delimited argument in a request/reply/inform line.
func Pack(m map[string]any) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return Escape(string(raw)), nil
}

// Unpack is the inverse of Pack.
func Unpack(s string) (map[string]any, error) {
	raw := Unescape(s)
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
