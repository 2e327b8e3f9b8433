package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/mpifr-bdr/reynard/internal/nodepool"
	"github.com/mpifr-bdr/reynard/internal/rerrors"
)

// defaultProjectDir is the on-disk directory standing in for the
// "default project" fallback tier (spec §6:
// <root>/pipelines/defaults/<receiver>/<tag>.json).
const defaultProjectDir = "defaults"

// parseTag extracts the tag component of a source name: everything
// after the final underscore, or "default" if there is none
// (spec §4.6 scan_handler).
func parseTag(sourceName string) string {
	idx := strings.LastIndex(sourceName, "_")
	if idx < 0 {
		return "default"
	}
	return sourceName[idx+1:]
}

// PipelineSpec is one pipeline entry within a rendered per-node config,
// matching the shape UBN's configure command expects
// (internal/ubn.PipelineDoc).
type PipelineSpec struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// templatePath returns <root>/pipelines/<project>/<receiver>/<tag>.json.
func templatePath(root, project, receiver, tag string) string {
	return filepath.Join(root, "pipelines", project, receiver, tag+".json")
}

// templateData is the context a pipeline config template is rendered
// against.
type templateData struct {
	Receiver     string
	Project      string
	Tag          string
	SourceName   string
	CaptureNodes []nodepool.Node
}

// loadAndRender resolves the template for (project, receiver, tag),
// falling back to (defaultProjectDir, receiver, tag) if the
// project-specific template is absent, then renders it against the
// capture-node list. The rendered document must be a JSON object
// mapping each capture node's hostname to its pipeline list.
func loadAndRender(root, project, receiver, tag string, nodes []nodepool.Node, sourceName string) (map[string][]PipelineSpec, error) {
	path := templatePath(root, project, receiver, tag)
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		path = templatePath(root, defaultProjectDir, receiver, tag)
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, rerrors.ConfigError("controller: no pipeline template for project=%s receiver=%s tag=%s: %v", project, receiver, tag, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Parse(string(body))
	if err != nil {
		return nil, rerrors.ConfigError("controller: bad template %s: %v", path, err)
	}

	var buf bytes.Buffer
	data := templateData{Receiver: receiver, Project: project, Tag: tag, SourceName: sourceName, CaptureNodes: nodes}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, rerrors.ConfigError("controller: render template %s: %v", path, err)
	}

	var perNode map[string][]PipelineSpec
	if err := json.Unmarshal(buf.Bytes(), &perNode); err != nil {
		return nil, rerrors.ConfigError("controller: rendered template %s is not valid JSON: %v", path, err)
	}
	return perNode, nil
}

// nodeConfigDoc is one node's entry in the UBI configure document
// (spec §4.5: `{ nodes: [ { ip, port, pipelines: [...] }, ... ] }`).
type nodeConfigDoc struct {
	IP        string         `json:"ip"`
	Port      int            `json:"port"`
	Pipelines []PipelineSpec `json:"pipelines"`
}

// configureDoc is the full UBI configure document.
type configureDoc struct {
	Nodes []nodeConfigDoc `json:"nodes"`
}

// buildConfigureDoc joins the rendered per-node pipeline lists to the
// resolved capture nodes' (ip, port), skipping (and logging via the
// returned warnings) any capture node absent from the rendered map.
func buildConfigureDoc(nodes []nodepool.Node, perNode map[string][]PipelineSpec) (configureDoc, []string) {
	var doc configureDoc
	var warnings []string
	for _, n := range nodes {
		pipelines, ok := perNode[n.Hostname]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no rendered pipeline config for capture node %q", n.Hostname))
			continue
		}
		ip := n.Hostname
		if len(n.Interfaces) > 0 {
			ip = n.Interfaces[0]
		}
		doc.Nodes = append(doc.Nodes, nodeConfigDoc{IP: ip, Port: n.Port, Pipelines: pipelines})
	}
	return doc, warnings
}
