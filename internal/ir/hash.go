package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the encoding
// to change without colliding with old journals.
const (
	DomainArgs   = "hwir/args/v1"
	DomainModule = "hwir/module/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ArgsHash returns the content hash of bound arguments. It hashes the same
// encoding as Args.Key.
func ArgsHash(args Args) (string, error) {
	canonical, err := marshalExact(args)
	if err != nil {
		return "", fmt.Errorf("ArgsHash: %w", err)
	}
	return hashWithDomain(DomainArgs, canonical), nil
}

// argsDigest is ArgsHash for args already checked against their params.
func argsDigest(args Args) string {
	return hashWithDomain(DomainArgs, []byte(args.Key()))
}

// ModuleFingerprint hashes everything observable about a module: name, port
// type, params, linkage, and the full definition (instances with their
// targets and arguments, connections). Two fingerprints differ iff the module
// changed.
func ModuleFingerprint(m *Module) (string, error) {
	obj := map[string]any{
		"name":    m.name,
		"linkage": m.linkage.String(),
		"params":  m.ConfigParams(),
	}
	if m.typ != nil {
		obj["type"] = m.typ.String()
	}
	if m.def != nil {
		insts := make(map[string]any, len(m.def.instances))
		for name, inst := range m.def.instances {
			entry := map[string]any{
				"target": inst.target.RefName(),
				"handle": int64(inst.target.Handle()),
				"gen":    inst.genArgs,
				"config": inst.config,
			}
			insts[name] = entry
		}
		conns := make([]any, 0, len(m.def.connections))
		for _, c := range m.def.Connections() {
			conns = append(conns, []string{c.A.String(), c.B.String()})
		}
		obj["definition"] = map[string]any{"instances": insts, "connections": conns}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ModuleFingerprint %s: %w", m.RefName(), err)
	}
	return hashWithDomain(DomainModule, canonical), nil
}

// MustArgsHash is like ArgsHash but panics on error.
// Use only in tests or when args are known to be valid.
func MustArgsHash(args Args) string {
	h, err := ArgsHash(args)
	if err != nil {
		panic(err)
	}
	return h
}
