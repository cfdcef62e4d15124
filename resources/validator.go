package resources

import (
	"fmt"
	"strings"

	"github.com/idpkit/idpkit/clients"
	"github.com/pkg/errors"
)

// Separator splits a parameterized scope token into name and parameter.
const Separator = ":"

// ParseError reports a malformed scope string. It is an expected validation
// outcome, not a fault.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scope %q: %s", e.Token, e.Reason)
}

// Validated is the outcome of successful scope validation: the resolved
// resources plus the parsed scopes that produced them.
type Validated struct {
	ParsedScopes      []ParsedScopeValue
	IdentityResources []Resource
	APIResources      []Resource
	OfflineAccess     bool
}

// ScopeString reconstructs the space separated granted scope value from the
// raw tokens.
func (v *Validated) ScopeString() string {
	raw := make([]string, 0, len(v.ParsedScopes)+1)
	for _, s := range v.ParsedScopes {
		raw = append(raw, s.Raw)
	}
	if v.OfflineAccess {
		raw = append(raw, OfflineAccessScope)
	}
	return strings.Join(raw, " ")
}

// ScopeNames returns the resolved scope names (without parameters).
func (v *Validated) ScopeNames() []string {
	names := make([]string, 0, len(v.ParsedScopes))
	for _, s := range v.ParsedScopes {
		names = append(names, s.Name)
	}
	return names
}

// Narrow returns a copy restricted to the given scope names, used when a user
// consents to fewer scopes than the client requested. Parameterized scopes
// match on their name; offline access survives only when its scope name is in
// the kept set.
func (v *Validated) Narrow(names []string) *Validated {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := &Validated{OfflineAccess: v.OfflineAccess && keep[OfflineAccessScope]}
	for _, s := range v.ParsedScopes {
		if keep[s.Name] {
			out.ParsedScopes = append(out.ParsedScopes, s)
		}
	}
	for _, r := range v.IdentityResources {
		if keep[r.Name] {
			out.IdentityResources = append(out.IdentityResources, r)
		}
	}
	for _, r := range v.APIResources {
		if keep[r.Name] {
			out.APIResources = append(out.APIResources, r)
		}
	}
	return out
}

// ClaimTypes aggregates the claim types of every resolved resource, used to
// filter the claims placed into tokens.
func (v *Validated) ClaimTypes() []string {
	seen := map[string]bool{}
	var types []string
	for _, rs := range [][]Resource{v.IdentityResources, v.APIResources} {
		for _, r := range rs {
			for _, ct := range r.ClaimTypes {
				if !seen[ct] {
					seen[ct] = true
					types = append(types, ct)
				}
			}
		}
	}
	return types
}

// Validator parses raw scope strings and validates them against client
// configuration and the registered resources.
type Validator struct {
	repo Repo
}

func NewValidator(repo Repo) *Validator {
	return &Validator{repo: repo}
}

// ParseScopes splits a raw scope string on whitespace, collapses exact
// duplicate tokens and splits registered parameterized scopes into
// (name, parameter). A parameter on a non-parameterized scope is a hard parse
// error; so is a parameterized scope missing its parameter.
func (v *Validator) ParseScopes(rawScopes string) ([]ParsedScopeValue, error) {
	tokens := strings.Fields(rawScopes)

	seen := map[string]bool{}
	names := make([]string, 0, len(tokens))
	deduped := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		deduped = append(deduped, t)
		names = append(names, strings.SplitN(t, Separator, 2)[0])
	}

	registered, err := v.repo.GetResources(names)
	if err != nil {
		return nil, errors.Wrap(err, "[Validator.ParseScopes] resource lookup")
	}
	byName := map[string]Resource{}
	for _, r := range registered {
		byName[r.Name] = r
	}

	parsed := make([]ParsedScopeValue, 0, len(deduped))
	for _, t := range deduped {
		name, param, hasParam := strings.Cut(t, Separator)
		res, ok := byName[name]
		switch {
		case hasParam && (!ok || !res.Parameterized):
			return nil, &ParseError{Token: t, Reason: "scope does not accept a parameter"}
		case hasParam && param == "":
			return nil, &ParseError{Token: t, Reason: "empty scope parameter"}
		case !hasParam && ok && res.Parameterized:
			return nil, &ParseError{Token: t, Reason: "scope requires a parameter"}
		}
		parsed = append(parsed, ParsedScopeValue{Raw: t, Name: name, Parameter: param})
	}
	return parsed, nil
}

// Validate rejects any parsed scope not allowed for the client or not backed
// by a registered resource, and resolves the granted resources.
// offline_access is handled as a protocol scope gated on the client's offline
// access setting.
func (v *Validator) Validate(client *clients.Client, parsed []ParsedScopeValue) (*Validated, error) {
	out := &Validated{}

	names := make([]string, 0, len(parsed))
	for _, p := range parsed {
		if p.Name == OfflineAccessScope {
			continue
		}
		names = append(names, p.Name)
	}
	registered, err := v.repo.GetResources(names)
	if err != nil {
		return nil, errors.Wrap(err, "[Validator.Validate] resource lookup")
	}
	byName := map[string]Resource{}
	for _, r := range registered {
		byName[r.Name] = r
	}

	for _, p := range parsed {
		if p.Name == OfflineAccessScope {
			if !client.AllowOfflineAccess {
				return nil, &ParseError{Token: p.Raw, Reason: "client not allowed offline access"}
			}
			out.OfflineAccess = true
			continue
		}
		if !client.HasScope(p.Name) {
			return nil, &ParseError{Token: p.Raw, Reason: "scope not allowed for client"}
		}
		res, ok := byName[p.Name]
		if !ok {
			return nil, &ParseError{Token: p.Raw, Reason: "scope not registered"}
		}
		out.ParsedScopes = append(out.ParsedScopes, p)
		switch res.Type {
		case IdentityResource:
			out.IdentityResources = append(out.IdentityResources, res)
		case APIResource:
			out.APIResources = append(out.APIResources, res)
		}
	}
	return out, nil
}

// ParseAndValidate is the common parse-then-validate path.
func (v *Validator) ParseAndValidate(client *clients.Client, rawScopes string) (*Validated, error) {
	parsed, err := v.ParseScopes(rawScopes)
	if err != nil {
		return nil, err
	}
	return v.Validate(client, parsed)
}
