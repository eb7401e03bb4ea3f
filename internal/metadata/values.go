package metadata

import "strings"

// Field is one metadata key with its value.
type Field struct {
	Key   string
	Value any
}

// Values is an ordered set of metadata fields. Keys are unique.
type Values []Field

// Get returns the value stored under key.
func (v Values) Get(key string) (any, bool) {
	for _, f := range v {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of key in place, or appends it.
func (v *Values) Set(key string, value any) {
	for i := range *v {
		if (*v)[i].Key == key {
			(*v)[i].Value = value
			return
		}
	}
	*v = append(*v, Field{Key: key, Value: value})
}

// Merge overlays other onto v; keys in other win.
func (v *Values) Merge(other Values) {
	for _, f := range other {
		v.Set(f.Key, f.Value)
	}
}

// Keys returns the keys in order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for _, f := range v {
		keys = append(keys, f.Key)
	}
	return keys
}

// ModalityMetadata is the metadata block of one modality type. Tasks holds
// the per-task blocks found under it.
type ModalityMetadata struct {
	Fields Values
	Tasks  map[string]Values
}

// StudyMetadata is the metadata section of a study configuration.
type StudyMetadata struct {
	Common     Values
	Modalities map[string]ModalityMetadata
}

// Select returns the common block and the block for modalityType. When task
// names a task block, it overrides the modality-level fields.
func (s StudyMetadata) Select(modalityType, task string) (Values, Values) {
	common := append(Values(nil), s.Common...)

	mod, ok := s.Modalities[modalityType]
	if !ok {
		return common, nil
	}
	modality := append(Values(nil), mod.Fields...)
	if task == "" {
		return common, modality
	}
	if block, ok := mod.Tasks[task]; ok {
		modality.Merge(block)
		return common, modality
	}
	for name, block := range mod.Tasks {
		if strings.EqualFold(name, task) {
			modality.Merge(block)
			break
		}
	}
	return common, modality
}
