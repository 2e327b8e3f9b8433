package pipeline

import "fmt"

// Descriptor is a registry entry keyed by pipeline-type-name (spec
// §3): the constructor reference, descriptive metadata, whether the
// type requires an accelerator device, the sensor names that Configure
// requires in its sensor snapshot (Start does not read them), and the
// external child images it spawns.
type Descriptor struct {
	TypeName          string
	Description       string
	RequiresAccel     bool
	RequiredSensors   []string
	RequiredImages    []string
	NewChildren       func(config map[string]any) ([]ChildSpec, error)
}

// ChildSpec describes one child process to spawn for a pipeline
// instance: its logical name (salted at spawn time), command and
// args, and whether it is persistent (spec §4.3: a persistent child's
// watchdog fails the pipeline on ANY exit, including a clean exit 0,
// since that child is expected to run for the pipeline's entire
// lifetime — exiting at all means something went wrong).
type ChildSpec struct {
	Name       string
	Cmd        string
	Args       []string
	Persistent bool
}

// registry is the process-wide pipeline-type-name to Descriptor
// mapping, populated with an explicit Register call at service start —
// the corpus's dynamic-registry pattern (pkg/plugin.RegisterCapturer)
// generalized from capturer/reporter factories to pipeline types.
var registry = make(map[string]Descriptor)

// Register adds a Descriptor to the type registry.
func Register(d Descriptor) {
	registry[d.TypeName] = d
}

// Lookup resolves a pipeline-type-name to its Descriptor.
func Lookup(typeName string) (Descriptor, error) {
	d, ok := registry[typeName]
	if !ok {
		return Descriptor{}, fmt.Errorf("pipeline: unknown pipeline type %q", typeName)
	}
	return d, nil
}

// TypeNames returns every registered pipeline-type-name.
func TypeNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
