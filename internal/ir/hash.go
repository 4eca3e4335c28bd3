package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainModule = "kernattr/module/v1"
	DomainResult = "kernattr/result/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content identity of a module: its functions,
// declared attributes, bodies and globals. Two modules with equal
// fingerprints produce identical analysis results.
func Fingerprint(m *Module) (string, error) {
	canonical, err := MarshalCanonical(DescribeModule(m))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainModule, canonical), nil
}

// ResultHash computes the identity of a set of per-function results, as
// produced by a pass run. Used to compare a replay against a stored run.
func ResultHash(results map[string]any) (string, error) {
	canonical, err := MarshalCanonical(results)
	if err != nil {
		return "", fmt.Errorf("ResultHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the module is known to be valid.
func MustFingerprint(m *Module) string {
	fp, err := Fingerprint(m)
	if err != nil {
		panic(err)
	}
	return fp
}

// DescribeModule returns a canonical-JSON-ready description of m.
func DescribeModule(m *Module) map[string]any {
	funcs := make([]any, 0, len(m.Functions))
	for _, f := range m.Functions {
		funcs = append(funcs, DescribeFunction(f))
	}
	globals := make([]any, 0, len(m.Globals))
	for _, g := range m.Globals {
		globals = append(globals, map[string]any{
			"name":      g.Name,
			"addrspace": int(g.AddrSpace),
		})
	}
	return map[string]any{
		"name":      m.Name,
		"functions": funcs,
		"globals":   globals,
	}
}

// DescribeFunction returns a canonical-JSON-ready description of f.
func DescribeFunction(f *Function) map[string]any {
	args := make([]any, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.Name
	}
	body := make([]any, len(f.Body))
	for i, inst := range f.Body {
		body[i] = FormatInstruction(inst)
	}
	return map[string]any{
		"name":    f.Name,
		"cc":      string(f.CC),
		"linkage": string(f.Linkage),
		"declare": f.Declaration,
		"flags":   f.Attrs.Flags(),
		"attrs":   f.Attrs.Strings(),
		"args":    args,
		"body":    body,
	}
}
