package jwt

import (
	"testing"
	"time"
	"unicode/utf8"
)

func FuzzIdentityRoundTrip(f *testing.F) {
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fuzz-key-fuzz-key-fuzz-key-fuzz!"),
		Issuer:        "goguard",
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}

	f.Add("u1", "o1", "agent")
	f.Add("", "o1", "")
	f.Add("user with spaces", "org/with/slashes", "\x00")
	f.Add("ünïcode", "组织", "admin")

	f.Fuzz(func(t *testing.T, uid, oid, role string) {
		token, err := m.CreateIdentity(uid, oid, role)
		if uid == "" || oid == "" {
			if err == nil {
				t.Fatal("expected empty ids to be refused")
			}
			return
		}
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		claims, err := m.ParseIdentity(token)
		if err != nil {
			t.Fatalf("parse own token: %v", err)
		}
		// Invalid UTF-8 is replaced during JSON encoding, so only valid
		// strings must come back unchanged.
		if !utf8.ValidString(uid) || !utf8.ValidString(oid) || !utf8.ValidString(role) {
			return
		}
		if claims.UID != uid || claims.OID != oid || claims.Role != role || claims.Subject != uid {
			t.Fatalf("round trip changed identity: %+v", claims)
		}
	})
}

func FuzzParseIdentityGarbage(f *testing.F) {
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("fuzz-key-fuzz-key-fuzz-key-fuzz!"),
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := m.CreateIdentity("u1", "o1", "")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ1MSIsIm9pZCI6Im8xIn0.")
	f.Add(valid[:len(valid)-2])

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := m.ParseIdentity(input)
		if err != nil {
			return
		}
		if claims == nil || claims.UID == "" || claims.OID == "" {
			t.Fatalf("accepted token without identity: %+v", claims)
		}
	})
}
