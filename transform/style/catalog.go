package style

import (
	"fmt"

	"github.com/footprint-studio/styleflow/types"
)

// Anchors 保持提示词一致性的风格锚点
type Anchors struct {
	Medium   string `json:"medium"`
	Era      string `json:"era,omitempty"`
	Palette  string `json:"palette"`
	Texture  string `json:"texture"`
	Lighting string `json:"lighting,omitempty"`
}

// Parameters 生成参数
type Parameters struct {
	// Temperature 取值范围 (0, 1]
	Temperature float64 `json:"temperature"`
	AspectRatio string  `json:"aspect_ratio,omitempty"`
}

// Definition describes one transformation style.
type Definition struct {
	ID             string     `json:"id"`
	NameHe         string     `json:"name_he"`
	NameEn         string     `json:"name_en"`
	Description    string     `json:"description"`
	Prompt         string     `json:"prompt"`
	NegativePrompt string     `json:"negative_prompt,omitempty"`
	Anchors        Anchors    `json:"style_anchors"`
	Parameters     Parameters `json:"parameters"`

	// 演示模式下的 CSS 滤镜
	CSSFilter string    `json:"css_filter"`
	Icon      string    `json:"icon"`
	Gradient  [2]string `json:"gradient"`
	Badge     string    `json:"badge,omitempty"`

	// References 参考图位置（相对路径或绝对 URL）
	References      []string `json:"references,omitempty"`
	ReferencePrompt string   `json:"reference_prompt,omitempty"`
}

// HasReferences reports whether the style ships reference images.
func (d Definition) HasReferences() bool {
	return len(d.References) > 0
}

// Catalog is an immutable registry of style definitions.
// It is populated once and safe for concurrent reads.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// NewCatalog builds a catalog preserving registration order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("style definition missing id")
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate style id %q", d.ID)
		}
		// 取反写法使 NaN 也被拒绝
		if t := d.Parameters.Temperature; !(t > 0 && t <= 1) {
			return nil, fmt.Errorf("style %q: temperature %.2f out of range (0, 1]", d.ID, d.Parameters.Temperature)
		}
		d.References = append([]string(nil), d.References...)
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on invalid definitions.
func MustNewCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustNewCatalog(builtinStyles()...)

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// IsValidStyleID reports whether id is registered. Match is exact and case-sensitive.
func (c *Catalog) IsValidStyleID(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, error) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, unknownStyle(id)
	}
	d := c.defs[i]
	d.References = append([]string(nil), d.References...)
	return d, nil
}

// Prompt returns the narrative prompt for id.
func (c *Catalog) Prompt(id string) (string, error) {
	d, err := c.Get(id)
	if err != nil {
		return "", err
	}
	return d.Prompt, nil
}

// ReferencePaths returns the reference image locations for id, or nil.
func (c *Catalog) ReferencePaths(id string) []string {
	d, err := c.Get(id)
	if err != nil {
		return nil
	}
	return d.References
}

// All returns every definition in registration order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	for i, d := range c.defs {
		d.References = append([]string(nil), d.References...)
		out[i] = d
	}
	return out
}

// IDs returns registered ids in registration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.defs))
	for i, d := range c.defs {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of registered styles.
func (c *Catalog) Len() int {
	return len(c.defs)
}

func unknownStyle(id string) *types.Error {
	return types.NewError(types.ErrUnknownStyle, fmt.Sprintf("unknown style: %q", id)).
		WithHTTPStatus(400)
}
