package subjects

// Claim is a single (type, value, value-type) triple. ValueType defaults to
// "string" when empty; it is preserved verbatim through serialization so that
// non-string claims (json, integer, boolean) round-trip without loss.
type Claim struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	ValueType string `json:"valueType,omitempty"`
}

// multiValuedTypes are claim types that may legitimately appear more than once
// per subject. Every other type is first-match-wins.
var multiValuedTypes = map[string]bool{
	"role":  true,
	"amr":   true,
	"aud":   true,
	"scope": true,
}

// Claims is an ordered claim set. Insertion order is preserved; for
// single-valued types the first claim of a type wins and later additions of
// the same type are ignored.
type Claims []Claim

// Add appends a claim, enforcing the uniqueness rule.
func (c Claims) Add(claim Claim) Claims {
	if !multiValuedTypes[claim.Type] && c.Has(claim.Type) {
		return c
	}
	return append(c, claim)
}

// AddAll appends each claim through Add.
func (c Claims) AddAll(claims ...Claim) Claims {
	for _, cl := range claims {
		c = c.Add(cl)
	}
	return c
}

// Has reports whether a claim of the given type exists.
func (c Claims) Has(claimType string) bool {
	for _, cl := range c {
		if cl.Type == claimType {
			return true
		}
	}
	return false
}

// Value returns the first value of the given type, or "".
func (c Claims) Value(claimType string) string {
	for _, cl := range c {
		if cl.Type == claimType {
			return cl.Value
		}
	}
	return ""
}

// Values returns every value of the given type in order.
func (c Claims) Values(claimType string) []string {
	var out []string
	for _, cl := range c {
		if cl.Type == claimType {
			out = append(out, cl.Value)
		}
	}
	return out
}

// FilterTypes returns the claims whose type is in the allowed set, preserving
// order. Used to restrict token claims to the types associated with the
// granted resources.
func (c Claims) FilterTypes(allowed []string) Claims {
	allowedSet := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = true
	}
	var out Claims
	for _, cl := range c {
		if allowedSet[cl.Type] {
			out = append(out, cl)
		}
	}
	return out
}
