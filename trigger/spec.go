package trigger

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"markestedt/piemenu/keys"
)

// ErrEmptyTrigger is returned for trigger strings with no key in them.
var ErrEmptyTrigger = errors.New("empty trigger")

// Spec is one registered trigger combination.
type Spec struct {
	Trigger   string   // as registered, passed to the Handler
	Primary   string   // canonical name of the last key
	Modifiers []string // canonical, sorted, unique
}

// ParseTrigger splits s on "+". The last token is the primary key and every
// token before it is a required modifier. Case and order of the modifiers do
// not matter.
func ParseTrigger(s string) (Spec, error) {
	var tokens []string
	for _, part := range strings.Split(s, "+") {
		if tok := keys.Canonical(part); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return Spec{}, fmt.Errorf("%w: %q", ErrEmptyTrigger, s)
	}

	mods := slices.Clone(tokens[:len(tokens)-1])
	slices.Sort(mods)
	mods = slices.Compact(mods)

	return Spec{
		Trigger:   strings.TrimSpace(s),
		Primary:   tokens[len(tokens)-1],
		Modifiers: mods,
	}, nil
}

// Canonical renders s as "mod+mod+primary" with sorted modifiers, so
// two spellings of the same combination compare equal.
func (s Spec) Canonical() string {
	return strings.Join(append(slices.Clone(s.Modifiers), s.Primary), "+")
}

// Canonical normalises a trigger string. Unparseable input is returned
// lower-cased and trimmed.
func Canonical(trigger string) string {
	spec, err := ParseTrigger(trigger)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(trigger))
	}
	return spec.Canonical()
}

// Validate reports whether every modifier is a known modifier and the primary
// key exists in the vocabulary.
func (s Spec) Validate() error {
	for _, m := range s.Modifiers {
		if !keys.IsModifier(m) {
			return fmt.Errorf("trigger %q: %q is not a modifier", s.Trigger, m)
		}
	}
	if _, ok := keys.VKForName(s.Primary); !ok {
		return fmt.Errorf("trigger %q: %w: %q", s.Trigger, keys.ErrUnknownKey, s.Primary)
	}
	return nil
}

// matches reports whether held, with the primary key itself removed, is
// exactly the modifier set.
func (s Spec) matches(held heldSet) bool {
	n := len(held)
	if _, ok := held[s.Primary]; ok {
		n--
	}
	if n != len(s.Modifiers) {
		return false
	}
	for _, m := range s.Modifiers {
		if m == s.Primary {
			return false
		}
		if _, ok := held[m]; !ok {
			return false
		}
	}
	return true
}
