package codec_test

import (
	"bytes"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/codec"
)

func sampleEntry() availcache.Entry {
	return availcache.Entry{
		EntityID:    "99999",
		DisplayName: "Celeste",
		Attributes: map[availcache.Platform]availcache.Attribute{
			availcache.Nintendo:    {Status: availcache.StatusAvailable, URL: "https://wd/n/Q1"},
			availcache.PlayStation: {Status: availcache.StatusUnavailable, URL: "https://wd/p/Q1"},
			availcache.Xbox:        {Status: availcache.StatusUnknown, URL: availcache.StoreSearchURL(availcache.Xbox, "Celeste")},
		},
		Source:        "wikidata",
		ExternalRefs:  map[string]string{"wikidata": "Q1"},
		ResolvedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TTLDays:       7,
		SchemaVersion: availcache.SchemaVersion,
	}
}

func sameEntry(t *testing.T, got, want availcache.Entry) {
	t.Helper()
	if got.EntityID != want.EntityID || got.DisplayName != want.DisplayName || got.Source != want.Source ||
		got.TTLDays != want.TTLDays || got.SchemaVersion != want.SchemaVersion || !got.ResolvedAt.Equal(want.ResolvedAt) {
		t.Fatalf("scalars differ:\n got %+v\nwant %+v", got, want)
	}
	if len(got.Attributes) != len(want.Attributes) {
		t.Fatalf("attributes = %v", got.Attributes)
	}
	for p, a := range want.Attributes {
		if got.Attributes[p] != a {
			t.Fatalf("%s = %+v, want %+v", p, got.Attributes[p], a)
		}
	}
	if got.ExternalRefs["wikidata"] != want.ExternalRefs["wikidata"] {
		t.Fatalf("refs = %v", got.ExternalRefs)
	}
}

func TestByNameRoundTrip(t *testing.T) {
	for _, name := range []string{"", codec.NameJSON, codec.NameMsgpack, codec.NameCBOR} {
		t.Run("codec="+name, func(t *testing.T) {
			c, err := codec.ByName[availcache.Entry](name)
			if err != nil {
				t.Fatal(err)
			}
			want := sampleEntry()
			b, err := c.Encode(want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			sameEntry(t, got, want)
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := codec.ByName[availcache.Entry]("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := codec.MustCBOR[availcache.Entry](true)
	a, err := c.Encode(sampleEntry())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		b, err := c.Encode(sampleEntry())
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatal("deterministic CBOR produced different bytes for equal entries")
		}
	}
}

func TestLimit(t *testing.T) {
	c := codec.Limit[availcache.Entry]{Inner: codec.JSON[availcache.Entry]{}, MaxDecode: 32}
	b, err := c.Encode(sampleEntry())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected size error for %d bytes", len(b))
	}
	c.MaxDecode = 0
	if _, err := c.Decode(b); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameMsgpack, codec.NameCBOR} {
		c, _ := codec.ByName[availcache.Entry](name)
		if _, err := c.Decode([]byte{0xff, 0x00, 0x13}); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestProtobufStruct(t *testing.T) {
	c := codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"name": "Celeste", "n": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.GetFields()["name"].GetStringValue() != "Celeste" || out.GetFields()["n"].GetNumberValue() != 3 {
		t.Fatalf("decoded = %v", out)
	}
}
