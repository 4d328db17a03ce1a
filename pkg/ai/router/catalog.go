package router

import (
	"campus-assistant-be/internal/constant"
	"strings"
)

// Route selects which provider family serves a model name.
type Route int

const (
	RouteUnrecognized Route = iota
	RoutePrimary
	RouteCloudA
	RouteCloudB
)

func (r Route) String() string {
	switch r {
	case RoutePrimary:
		return "primary"
	case RouteCloudA:
		return "cloud_a"
	case RouteCloudB:
		return "cloud_b"
	default:
		return "unrecognized"
	}
}

// ModelSpec is one recognized model name.
type ModelSpec struct {
	Name        string
	Route       Route
	Vision      bool
	Label       string
	Description string
}

// Catalog is the ordered table of recognized model names.
type Catalog struct {
	specs  []ModelSpec
	byName map[string]int
}

var knownLabels = map[string]struct{ label, description string }{
	"llava":    {"🖥️ LLaVA (本地 Ollama)", "視覺模型 - 適合圖片分析"},
	"bakllava": {"🖥️ BakLLaVA (本地 Ollama)", "輕量視覺模型 - 快速推理"},
	"qwen2.5":  {"🖥️ Qwen 2.5 (本地 Ollama)", "文本模型 - 適合文本分析"},
}

// NewCatalog builds the table from the primary model list, the subset of it
// that is vision capable, and the two fixed cloud entries.
func NewCatalog(primaryModels, visionModels []string) *Catalog {
	vision := make(map[string]bool, len(visionModels))
	for _, m := range visionModels {
		vision[m] = true
	}

	c := &Catalog{byName: make(map[string]int)}
	for _, name := range primaryModels {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec := ModelSpec{Name: name, Route: RoutePrimary, Vision: vision[name]}
		if known, ok := knownLabels[name]; ok {
			spec.Label, spec.Description = known.label, known.description
		} else {
			spec.Label = "🖥️ " + name + " (本地 Ollama)"
			spec.Description = "文本模型 - 適合文本分析"
			if spec.Vision {
				spec.Description = "視覺模型 - 適合圖片分析"
			}
		}
		c.add(spec)
	}

	c.add(ModelSpec{
		Name:        constant.ModelGPT,
		Route:       RouteCloudA,
		Vision:      true,
		Label:       "☁️ GPT-4 Vision (OpenAI)",
		Description: "雲端 - 高精度但需付費",
	})
	c.add(ModelSpec{
		Name:        constant.ModelClaude,
		Route:       RouteCloudB,
		Vision:      true,
		Label:       "☁️ Claude 3 (Anthropic)",
		Description: "雲端 - 高精度但需付費",
	})
	return c
}

func (c *Catalog) add(spec ModelSpec) {
	if _, dup := c.byName[spec.Name]; dup {
		return
	}
	c.byName[spec.Name] = len(c.specs)
	c.specs = append(c.specs, spec)
}

// Lookup classifies a model name. Unknown names come back with
// RouteUnrecognized and ok=false.
func (c *Catalog) Lookup(name string) (ModelSpec, bool) {
	if i, ok := c.byName[name]; ok {
		return c.specs[i], true
	}
	return ModelSpec{Name: name, Route: RouteUnrecognized}, false
}

func (c *Catalog) Specs() []ModelSpec {
	return append([]ModelSpec(nil), c.specs...)
}

// bareModelName strips a ":tag" suffix. ok is false for untagged names.
func bareModelName(name string) (string, bool) {
	i := strings.Index(name, ":")
	if i <= 0 {
		return name, false
	}
	return name[:i], true
}
