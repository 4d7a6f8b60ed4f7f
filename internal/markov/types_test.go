package markov

import "testing"

func TestCacheKeyNormalizesSortsAndTrims(t *testing.T) {
	req := Request{Path: "/profiles/u1", Query: map[string]string{"b": " 2 ", "a": "1"}}
	got := req.CacheKey()
	want := "/profiles/u1?a=1&b=2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCacheKeyNoQueryIsJustPath(t *testing.T) {
	req := Request{Path: "/profiles/u1"}
	if got := req.CacheKey(); got != "/profiles/u1" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeIdentityPrefixesBareID(t *testing.T) {
	if got := NormalizeIdentity("u1"); got != "gotong_royong:u1" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeIdentityLeavesNamespacedIDAlone(t *testing.T) {
	if got := NormalizeIdentity("platform:u1"); got != "platform:u1" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeIdentityLeavesUUIDAlone(t *testing.T) {
	uuid := "123e4567-e89b-12d3-a456-426614174000"
	if got := NormalizeIdentity(uuid); got != uuid {
		t.Fatalf("got %q", got)
	}
}
