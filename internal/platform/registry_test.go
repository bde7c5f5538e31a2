package platform

import (
	"context"
	"reflect"
	"testing"
)

type fakeAdapter struct {
	tag string
}

func (a *fakeAdapter) Tag() string { return a.tag }

func (a *fakeAdapter) Publish(_ context.Context, _ Credential, _ Publication) (string, error) {
	return "ext-" + a.tag, nil
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{tag: "facebook"}, &fakeAdapter{tag: "tiktok"})

	a, ok := reg.Get("facebook")
	if !ok {
		t.Fatal("expected facebook adapter to be registered")
	}
	if a.Tag() != "facebook" {
		t.Errorf("Tag() = %q, want facebook", a.Tag())
	}

	if _, ok := reg.Get("myspace"); ok {
		t.Error("expected lookup of unregistered platform to fail")
	}
	if reg.Has("myspace") {
		t.Error("Has() reported an unregistered platform")
	}
}

func TestRegistryTagsSorted(t *testing.T) {
	reg := NewRegistry(&fakeAdapter{tag: "youtube"}, &fakeAdapter{tag: "facebook"}, &fakeAdapter{tag: "instagram"})

	want := []string{"facebook", "instagram", "youtube"}
	if got := reg.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}
