// Package dedup derives the stable identity key used to recognise the same
// posting across runs and sources.
//
// A key is the hex SHA-256 of an identity scheme followed by normalized
// fields. Three schemes exist:
//
//	ext      source site + external id (job with an external id)
//	job      title + company name + location (job without one)
//	company  name + website
//
// Normalization trims, lower-cases and collapses whitespace runs, so values
// that differ only in spacing or case map to the same key.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

// Key is a deterministic identity derived from a record.
type Key string

// Scheme names the field set a key was derived from.
type Scheme string

const (
	SchemeExternal Scheme = "ext"
	SchemeJob      Scheme = "job"
	SchemeCompany  Scheme = "company"
)

// unitSep separates fields before hashing so ("ab","c") and ("a","bc")
// never collide.
const unitSep = "\x1f"

// Resolve returns the key for r. It is pure: equal inputs always yield equal
// keys, across processes and restarts.
func Resolve(r model.Record) Key {
	key, _ := ResolveScheme(r)
	return key
}

// ResolveScheme is Resolve plus the scheme that was used.
func ResolveScheme(r model.Record) (Key, Scheme) {
	if !r.IsJob() {
		return hash(SchemeCompany, r.Name, r.Website), SchemeCompany
	}
	if Normalize(r.ExternalID) != "" {
		return hash(SchemeExternal, r.SourceSite, r.ExternalID), SchemeExternal
	}
	return hash(SchemeJob, r.Title, r.CompanyName, r.Location), SchemeJob
}

// Normalize trims s, lower-cases it and collapses internal whitespace runs
// into a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hash(scheme Scheme, fields ...string) Key {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, string(scheme))
	for _, f := range fields {
		parts = append(parts, Normalize(f))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, unitSep)))
	return Key(hex.EncodeToString(sum[:]))
}
