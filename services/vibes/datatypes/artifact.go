// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "encoding/json"

// Artifact is the expensive-to-compute result being cached: an opaque,
// serialized blob. The compute cache never inspects its contents.
type Artifact []byte

// MarshalArtifact serializes v as a JSON artifact blob.
func MarshalArtifact(v any) (Artifact, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Artifact(blob), nil
}

// Decode unmarshals the artifact blob into v.
func (a Artifact) Decode(v any) error {
	return json.Unmarshal(a, v)
}

// PosteriorCurve holds plotting points of a posterior density.
type PosteriorCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// PosteriorSummary is a summary of one posterior distribution.
type PosteriorSummary struct {
	Stats map[string]float64 `json:"stats"`
	Curve PosteriorCurve     `json:"curve"`
}
