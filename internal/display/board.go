package display

import (
	"sort"
	"strings"
	"sync"

	"codeberg.org/mutker/solardash/internal/telemetry"
)

type element struct {
	text    string
	classes []string
	parent  string
}

// ElementState is a copy of one element's state
type ElementState struct {
	Text    string
	Classes []string
	Parent  string
}

// HasClass reports whether class is set on the element
func (s ElementState) HasClass(class string) bool {
	for _, c := range s.Classes {
		if c == class {
			return true
		}
	}

	return false
}

// Board is an in-memory element tree implementing Target. It is safe for
// concurrent use.
type Board struct {
	mu       sync.RWMutex
	elements map[string]*element
}

// NewBoard returns a board with the dashboard layout: for every section a
// card holding the LED and one cell per numeric field.
func NewBoard() *Board {
	b := NewEmptyBoard()

	for _, section := range telemetry.Sections {
		card := CardID(section)
		b.Add(card, "")
		b.Add(LEDID(section), card, LEDBaseClass)
		for _, field := range Fields {
			id := ValueID(section, field)
			b.Add(CellID(id), card)
			b.Add(id, CellID(id))
		}
	}

	return b
}

// NewEmptyBoard returns a board without elements
func NewEmptyBoard() *Board {
	return &Board{elements: make(map[string]*element)}
}

// Add creates or replaces an element. parent may be empty.
func (b *Board) Add(id, parent string, classes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.elements[id] = &element{
		parent:  parent,
		classes: append([]string(nil), classes...),
	}
}

// Remove deletes an element
func (b *Board) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.elements, id)
}

func (b *Board) Text(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	el, ok := b.elements[id]
	if !ok {
		return "", false
	}

	return el.text, true
}

func (b *Board) SetText(id, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.elements[id]
	if !ok {
		return false
	}
	el.text = text

	return true
}

func (b *Board) SetCategory(id, base, category string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.elements[id]
	if !ok {
		return false
	}

	el.classes = el.classes[:0]
	addClass(el, base)
	addClass(el, category)

	return true
}

func (b *Board) SetFlash(id string, on bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.elements[id]
	if !ok {
		return false
	}
	container, ok := b.elements[el.parent]
	if !ok {
		return false
	}

	if on {
		addClass(container, UpdatedClass)
	} else {
		removeClass(container, UpdatedClass)
	}

	return true
}

// Element returns a copy of the state of id
func (b *Board) Element(id string) (ElementState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	el, ok := b.elements[id]
	if !ok {
		return ElementState{}, false
	}

	return ElementState{
		Text:    el.text,
		Classes: append([]string(nil), el.classes...),
		Parent:  el.parent,
	}, true
}

// ClassName returns the space separated classes of id
func (b *Board) ClassName(id string) string {
	state, _ := b.Element(id)
	return strings.Join(state.Classes, " ")
}

// Flashing reports whether the container of id is in the updated state
func (b *Board) Flashing(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	el, ok := b.elements[id]
	if !ok {
		return false
	}
	container, ok := b.elements[el.parent]
	if !ok {
		return false
	}

	return hasClass(container, UpdatedClass)
}

// IDs returns every element id in sorted order
func (b *Board) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.elements))
	for id := range b.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func hasClass(el *element, class string) bool {
	for _, c := range el.classes {
		if c == class {
			return true
		}
	}

	return false
}

func addClass(el *element, class string) {
	if class == "" || hasClass(el, class) {
		return
	}
	el.classes = append(el.classes, class)
}

func removeClass(el *element, class string) {
	kept := el.classes[:0]
	for _, c := range el.classes {
		if c != class {
			kept = append(kept, c)
		}
	}
	el.classes = kept
}
