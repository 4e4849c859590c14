package storage

import "testing"

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	prefs := NewPrefixDB(inner, PrefixPrefs)
	tokens := NewPrefixDB(inner, PrefixTokens)

	if err := prefs.Put([]byte("k"), []byte("pref")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := tokens.Put([]byte("k"), []byte("token")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := prefs.Get([]byte("k"))
	if err != nil || string(got) != "pref" {
		t.Fatalf("prefs.Get = %q, %v", got, err)
	}
	got, err = tokens.Get([]byte("k"))
	if err != nil || string(got) != "token" {
		t.Fatalf("tokens.Get = %q, %v", got, err)
	}

	raw, err := inner.Get([]byte("p/k"))
	if err != nil || string(raw) != "pref" {
		t.Fatalf("inner key layout: %q, %v", raw, err)
	}

	if err := prefs.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := tokens.Has([]byte("k")); !ok {
		t.Error("delete in one namespace removed the other")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))
	db.Put([]byte("a/1"), []byte("x"))
	db.Put([]byte("a/2"), []byte("y"))
	inner.Put([]byte("other/a/3"), []byte("z"))

	var keys []string
	err := db.ForEach([]byte("a/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
		t.Errorf("ForEach keys = %v, want [a/1 a/2]", keys)
	}
}
