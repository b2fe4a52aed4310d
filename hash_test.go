package forge

import "testing"

func TestHashHello(t *testing.T) {
	got := Hash("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("Hash(%q) = %s, want %s", "hello", got, want)
	}
}

func TestHashDeterministic(t *testing.T) {
	v := map[string]interface{}{"a": 1, "b": "two", "c": []interface{}{1, 2, 3}}
	if Hash(v) != Hash(v) {
		t.Fatal("Hash is not deterministic for the same value")
	}
}

func TestHashDistinguishesValues(t *testing.T) {
	if Hash("alpha") == Hash("beta") {
		t.Fatal("distinct inputs hashed to the same digest")
	}
}

func TestHashKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"who": "alice", "what": "deploy", "when": 100}
	b := map[string]interface{}{"when": 100, "what": "deploy", "who": "alice"}
	if Hash(a) != Hash(b) {
		t.Fatalf("Hash depends on key order: Hash(a)=%s Hash(b)=%s", Hash(a), Hash(b))
	}
}

func TestHashNestedKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{
		"outer": map[string]interface{}{"z": 1, "a": 2},
		"list":  []interface{}{map[string]interface{}{"y": 1, "x": 2}},
	}
	b := map[string]interface{}{
		"list":  []interface{}{map[string]interface{}{"x": 2, "y": 1}},
		"outer": map[string]interface{}{"a": 2, "z": 1},
	}
	if Hash(a) != Hash(b) {
		t.Fatal("nested object key order affects the digest")
	}
}

func TestHashEmptyAndNil(t *testing.T) {
	if Hash(nil) != Hash("") {
		t.Fatal("nil and empty string must hash identically")
	}
}

func TestHashManyOrderMatters(t *testing.T) {
	a := HashMany("x", "y", "z")
	b := HashMany("z", "y", "x")
	if a == b {
		t.Fatal("HashMany must be order-sensitive")
	}
}

func TestHashManyDeterministic(t *testing.T) {
	if HashMany("a", "b", 1, nil) != HashMany("a", "b", 1, nil) {
		t.Fatal("HashMany is not deterministic for identical arguments")
	}
}
