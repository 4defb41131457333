package static

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/codec"
)

var fixtureCodec = codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })

// MarshalFixtures snapshots the provider's records as a protobuf Struct:
//
//	{"<id>": {"name": "...", "ref": "...", "platforms": {"nintendo": "available"}}}
func (p *Provider) MarshalFixtures() ([]byte, error) {
	ids := make([]string, 0, len(p.records))
	for id := range p.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	root := make(map[string]any, len(ids))
	for _, id := range ids {
		r := p.records[id]
		platforms := make(map[string]any, len(r.Platforms))
		for pl, st := range r.Platforms {
			platforms[pl.String()] = st.String()
		}
		root[id] = map[string]any{
			"name":      r.Name,
			"ref":       r.Ref,
			"platforms": platforms,
		}
	}
	s, err := structpb.NewStruct(root)
	if err != nil {
		return nil, fmt.Errorf("static fixtures: %w", err)
	}
	return fixtureCodec.Encode(s)
}

// UnmarshalFixtures reads a snapshot written by MarshalFixtures.
func UnmarshalFixtures(b []byte) (map[string]Record, error) {
	s, err := fixtureCodec.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("static fixtures: %w", err)
	}
	out := make(map[string]Record, len(s.GetFields()))
	for id, v := range s.GetFields() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("static fixtures: record %q is not an object", id)
		}
		r := Record{
			Name:      fields["name"].GetStringValue(),
			Ref:       fields["ref"].GetStringValue(),
			Platforms: make(map[availcache.Platform]availcache.Status),
		}
		for name, sv := range fields["platforms"].GetStructValue().GetFields() {
			pl, err := availcache.ParsePlatform(name)
			if err != nil {
				return nil, fmt.Errorf("static fixtures: record %q: %w", id, err)
			}
			st, err := availcache.ParseStatus(sv.GetStringValue())
			if err != nil {
				return nil, fmt.Errorf("static fixtures: record %q: %w", id, err)
			}
			r.Platforms[pl] = st
		}
		out[id] = r
	}
	return out, nil
}
