package grimoire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/obsidian-innovations/goetia-sub001/internal/sigil"
)

// Page is the set of sigils bound to one entity.
type Page struct {
	DemonID string        `json:"demonId"`
	Sigils  []sigil.Sigil `json:"sigils"`
}

// Data is the durable aggregate. Research payloads are owned by the research
// subsystem and stored verbatim.
type Data struct {
	Pages    []Page                     `json:"pages"`
	Research map[string]json.RawMessage `json:"research"`
}

// EmptyData returns an aggregate with no pages and no research.
func EmptyData() Data {
	return Data{Pages: []Page{}, Research: map[string]json.RawMessage{}}
}

// Decode parses a stored aggregate, accepting the legacy bare-array shape.
// Empty input decodes to EmptyData.
func Decode(b []byte) (Data, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return EmptyData(), nil
	}

	var d Data
	if b[0] == '[' {
		if err := json.Unmarshal(b, &d.Pages); err != nil {
			return Data{}, fmt.Errorf("decode legacy pages: %w", err)
		}
	} else if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("decode grimoire: %w", err)
	}

	if err := d.validate(); err != nil {
		return Data{}, fmt.Errorf("decode grimoire: %w", err)
	}
	return d.normalized(), nil
}

// Encode serializes the aggregate in the current shape.
func Encode(d Data) ([]byte, error) {
	b, err := json.Marshal(d.normalized())
	if err != nil {
		return nil, fmt.Errorf("encode grimoire: %w", err)
	}
	return b, nil
}

// normalized fills nil collections so the encoded shape is stable, and puts
// page owners and research keys in NFC form.
func (d Data) normalized() Data {
	pages := make([]Page, len(d.Pages))
	for i, p := range d.Pages {
		p.DemonID = NormalizeDemonID(p.DemonID)
		sigils := make([]sigil.Sigil, len(p.Sigils))
		for j, sg := range p.Sigils {
			sg.DemonID = NormalizeDemonID(sg.DemonID)
			sigils[j] = sg
		}
		p.Sigils = sigils
		pages[i] = p
	}
	d.Pages = pages

	research := make(map[string]json.RawMessage, len(d.Research))
	for k, v := range d.Research {
		research[NormalizeDemonID(k)] = v
	}
	d.Research = research
	return d
}

// validate checks that sigil ids are unique within each page, that every
// sigil sits on its owner's page, and that no two pages or research keys
// name the same entity once normalised.
func (d Data) validate() error {
	pages := make(map[string]bool, len(d.Pages))
	for _, p := range d.Pages {
		owner := NormalizeDemonID(p.DemonID)
		if pages[owner] {
			return fmt.Errorf("duplicate page for %s", p.DemonID)
		}
		pages[owner] = true

		seen := make(map[string]bool, len(p.Sigils))
		for _, s := range p.Sigils {
			if seen[s.ID] {
				return fmt.Errorf("page %s: duplicate sigil id %s", p.DemonID, s.ID)
			}
			seen[s.ID] = true
			if NormalizeDemonID(s.DemonID) != owner {
				return fmt.Errorf("page %s: sigil %s belongs to %s", p.DemonID, s.ID, s.DemonID)
			}
		}
	}

	keys := make(map[string]bool, len(d.Research))
	for k := range d.Research {
		nk := NormalizeDemonID(k)
		if keys[nk] {
			return fmt.Errorf("duplicate research entry for %s", nk)
		}
		keys[nk] = true
	}
	return nil
}

// pageIndex returns the index of the page for demonID, or -1.
func (d Data) pageIndex(demonID string) int {
	demonID = NormalizeDemonID(demonID)
	return slices.IndexFunc(d.Pages, func(p Page) bool {
		return NormalizeDemonID(p.DemonID) == demonID
	})
}

// findSigil locates a sigil by id across all pages.
func (d Data) findSigil(sigilID string) (page, idx int, ok bool) {
	for pi, p := range d.Pages {
		for si, s := range p.Sigils {
			if s.ID == sigilID {
				return pi, si, true
			}
		}
	}
	return -1, -1, false
}

// NormalizeDemonID returns the NFC form used for page and research keys, so
// visually identical names typed on different keyboards share one page.
func NormalizeDemonID(id string) string {
	return norm.NFC.String(id)
}
