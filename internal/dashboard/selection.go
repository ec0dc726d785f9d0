package dashboard

import "sort"

// Selection is one filter dimension: a key → selected map plus the
// single-select ("radio") flag. An empty map lets everything through; once
// keys are present it is a strict allow-list.
type Selection struct {
	Values map[string]bool `json:"values"`
	Radio  bool            `json:"radio"`
}

// NewSelection returns a multi-select Selection with every key on.
func NewSelection(keys ...string) Selection {
	s := Selection{Values: make(map[string]bool, len(keys))}
	for _, k := range keys {
		s.Values[k] = true
	}
	return s
}

func (s Selection) Allows(key string) bool {
	if len(s.Values) == 0 {
		return true
	}
	return s.Values[key]
}

// Set turns key on or off. In radio mode turning a key on clears its siblings.
func (s *Selection) Set(key string, on bool) {
	if s.Values == nil {
		s.Values = map[string]bool{}
	}
	if on && s.Radio {
		for k := range s.Values {
			s.Values[k] = false
		}
	}
	s.Values[key] = on
}

// Toggle flips whether key is shown. An empty map shows every key, so
// hiding one first seeds the map with known, all on.
func (s *Selection) Toggle(key string, known ...string) {
	on := !s.Allows(key)
	if len(s.Values) == 0 && !on {
		s.Values = make(map[string]bool, len(known))
		for _, k := range known {
			s.Values[k] = true
		}
	}
	s.Set(key, on)
}

// SetRadio switches single-select mode. Entering it keeps only the first
// selected key in lexicographic order.
func (s *Selection) SetRadio(on bool) {
	s.Radio = on
	if !on {
		return
	}
	sel := s.Selected()
	if len(sel) == 0 {
		return
	}
	for k := range s.Values {
		s.Values[k] = k == sel[0]
	}
}

// SetAll selects or clears every known key. Selecting all leaves radio mode.
func (s *Selection) SetAll(on bool) {
	if on {
		s.Radio = false
	}
	for k := range s.Values {
		s.Values[k] = on
	}
}

// Selected returns the selected keys in sorted order.
func (s Selection) Selected() []string {
	var out []string
	for k, v := range s.Values {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Keys returns every known key in sorted order.
func (s Selection) Keys() []string {
	out := make([]string, 0, len(s.Values))
	for k := range s.Values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Selection) Clone() Selection {
	c := Selection{Radio: s.Radio}
	if s.Values != nil {
		c.Values = make(map[string]bool, len(s.Values))
		for k, v := range s.Values {
			c.Values[k] = v
		}
	}
	return c
}

// MergeDefaults adds keys known to defaults but missing here, with the
// default's value. Existing choices win. A radio selection is collapsed to
// a single key.
func (s *Selection) MergeDefaults(defaults Selection) {
	if s.Values == nil {
		s.Values = map[string]bool{}
	}
	for k, v := range defaults.Values {
		if _, ok := s.Values[k]; !ok {
			s.Values[k] = v && !s.Radio
		}
	}
	if s.Radio {
		s.SetRadio(true)
	}
}
