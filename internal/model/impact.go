package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultImpactKey is the fallback key of a map-typed impact.
const DefaultImpactKey = "default"

// Impact is a price multiplier: either one scalar for every stock or a map
// keyed by sector, region or "default". It encodes as a JSON/YAML number or
// object accordingly.
type Impact struct {
	Scalar float64
	Map    map[string]float64
}

// ScalarImpact returns a scalar impact.
func ScalarImpact(v float64) *Impact { return &Impact{Scalar: v} }

// MapImpact returns a map-typed impact.
func MapImpact(m map[string]float64) *Impact { return &Impact{Map: m} }

// IsMap reports whether the impact is keyed.
func (i *Impact) IsMap() bool { return i != nil && i.Map != nil }

// Mean is the scalar itself, or the average of the map values. A nil or
// empty impact counts as 0, so events that carry no multiplier (splits,
// alliances, mergers, neutral news) read as a full-size move in the
// event_impact_magnitude signal.
func (i *Impact) Mean() float64 {
	if i == nil {
		return 0
	}
	if i.Map == nil {
		return i.Scalar
	}
	if len(i.Map) == 0 {
		return 0
	}
	var sum float64
	for _, v := range i.Map {
		sum += v
	}
	return sum / float64(len(i.Map))
}

// Clone returns a deep copy.
func (i *Impact) Clone() *Impact {
	if i == nil {
		return nil
	}
	c := &Impact{Scalar: i.Scalar}
	if i.Map != nil {
		c.Map = make(map[string]float64, len(i.Map))
		for k, v := range i.Map {
			c.Map[k] = v
		}
	}
	return c
}

func (i Impact) MarshalJSON() ([]byte, error) {
	if i.Map != nil {
		return json.Marshal(i.Map)
	}
	return json.Marshal(i.Scalar)
}

func (i *Impact) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*i = Impact{Scalar: f}
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("impact: want number or object: %w", err)
	}
	*i = Impact{Map: m}
	return nil
}

func (i *Impact) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("impact: %w", err)
		}
		*i = Impact{Scalar: f}
	case yaml.MappingNode:
		var m map[string]float64
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("impact: %w", err)
		}
		*i = Impact{Map: m}
	default:
		return fmt.Errorf("impact: line %d: want number or mapping", node.Line)
	}
	return nil
}

func (i Impact) MarshalYAML() (interface{}, error) {
	if i.Map != nil {
		return i.Map, nil
	}
	return i.Scalar, nil
}
