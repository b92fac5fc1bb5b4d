// Package render turns a transcription service response into a panel of
// collapsible sections. The panel is a plain model; HTML and Text are two
// views of it.
package render

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is reported when a successful response is not a JSON object.
var ErrMalformedResponse = errors.New("malformed transcription response")

// Kind tags the variant held by a Content.
type Kind int

const (
	KindLeaf Kind = iota
	KindGroup
)

// Item is one "key: value" line of a group.
type Item struct {
	Key   string
	Value string
}

func (i Item) String() string {
	return i.Key + ": " + i.Value
}

// Content is either a Leaf with flat text or a Group of items.
type Content struct {
	Kind  Kind
	Text  string
	Items []Item
}

func Leaf(text string) Content {
	return Content{Kind: KindLeaf, Text: text}
}

func Group(items ...Item) Content {
	return Content{Kind: KindGroup, Items: items}
}

func (c Content) IsLeaf() bool  { return c.Kind == KindLeaf }
func (c Content) IsGroup() bool { return c.Kind == KindGroup }

type Section struct {
	Title    string
	Content  Content
	Expanded bool
}

// RawTitle names the trailing section holding the unparsed body.
const RawTitle = "raw"

var expandedByDefault = map[string]bool{
	"results": true,
	"info":    true,
}

// Panel is the rendered outcome of one upload. Either Error is set and
// Sections is empty, or the reverse.
type Panel struct {
	Status   int
	Error    string
	Sections []Section
}

func (p Panel) IsError() bool {
	return p.Error != ""
}

// Toggle flips the expansion of section i and reports the new value.
func (p *Panel) Toggle(i int) (bool, error) {
	if i < 0 || i >= len(p.Sections) {
		return false, fmt.Errorf("section %d out of range", i)
	}
	p.Sections[i].Expanded = !p.Sections[i].Expanded
	return p.Sections[i].Expanded, nil
}

// Section returns the section titled name.
func (p Panel) Section(name string) (Section, bool) {
	for _, s := range p.Sections {
		if s.Title == name {
			return s, true
		}
	}
	return Section{}, false
}

// Success reports whether status is in the 2xx range.
func Success(status int) bool {
	return status >= 200 && status < 300
}

// Parse builds the panel for a response with the given status and body.
func Parse(status int, body []byte) Panel {
	if !Success(status) {
		return Panel{Status: status, Error: errorText(status, body)}
	}
	if !gjson.ValidBytes(body) {
		return Failure(fmt.Errorf("%w: invalid JSON", ErrMalformedResponse))
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Failure(fmt.Errorf("%w: expected an object", ErrMalformedResponse))
	}

	panel := Panel{Status: status}
	root.ForEach(func(key, value gjson.Result) bool {
		panel.Sections = append(panel.Sections, Section{
			Title:    key.String(),
			Content:  contentOf(value),
			Expanded: expandedByDefault[key.String()],
		})
		return true
	})
	panel.Sections = append(panel.Sections, Section{Title: RawTitle, Content: Leaf(string(body))})
	return panel
}

// Failure builds the error panel for a transport or decoding failure.
func Failure(err error) Panel {
	msg := "transcription failed"
	if err != nil {
		msg = err.Error()
	}
	return Panel{Error: msg}
}

func errorText(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		if e := gjson.GetBytes(body, "error"); e.Type == gjson.String && e.Str != "" {
			return e.Str
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "HTTP " + strconv.Itoa(status)
}

func contentOf(value gjson.Result) Content {
	switch {
	case value.Type == gjson.String:
		return Leaf(value.Str)
	case value.IsObject():
		var items []Item
		value.ForEach(func(k, v gjson.Result) bool {
			items = append(items, Item{Key: k.String(), Value: itemText(v)})
			return true
		})
		return Group(items...)
	case value.IsArray():
		var items []Item
		for i, v := range value.Array() {
			items = append(items, Item{Key: strconv.Itoa(i), Value: itemText(v)})
		}
		return Group(items...)
	default:
		return Leaf(value.Raw)
	}
}

func itemText(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	if v.IsObject() || v.IsArray() {
		return gjson.Get(v.Raw, "@ugly").Raw
	}
	return v.Raw
}
