// Package corelib declares the "core" namespace: a small library of
// primitive generators that designs instantiate.
//
//	core.wire(width)       pass-through, {in:BitIn[w], out:Bit[w]}
//	core.reg(width)        register, {clk:core.clkIn, in:BitIn[w], out:Bit[w]}, config init:int
//	core.add(width)        adder, {in0:BitIn[w], in1:BitIn[w], out:Bit[w]}
//	core.addtree(width, n) sum of n inputs built recursively from add
//
// wire, reg and add are primitives and elaborate into declarations. addtree
// has a definition that instantiates smaller addtrees, so elaborating it
// exercises recursive elaboration.
package corelib

import (
	"fmt"

	"github.com/roach88/hwir/internal/ir"
)

// Namespace is the name of the namespace Load creates.
const Namespace = "core"

// Load declares the core namespace in c. It fails if c already has one.
func Load(c *ir.Context) (*ir.Namespace, error) {
	ns, err := c.NewNamespace(Namespace)
	if err != nil {
		return nil, err
	}

	clk, err := ns.NewNamedType("clk", "clkIn", ir.Bit())
	if err != nil {
		return nil, err
	}

	widthParams := ir.Params{"width": ir.ParamInt}

	wireT, err := ns.NewTypeGen("wireT", widthParams, func(args ir.Args) (ir.Type, error) {
		w, err := positive(args, "width")
		if err != nil {
			return nil, err
		}
		return ir.Record(ir.F("in", ir.Array(w, ir.BitIn())), ir.F("out", ir.Array(w, ir.Bit()))), nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := ns.NewGeneratorDecl("wire", wireT, nil); err != nil {
		return nil, err
	}

	regT, err := ns.NewTypeGen("regT", widthParams, func(args ir.Args) (ir.Type, error) {
		w, err := positive(args, "width")
		if err != nil {
			return nil, err
		}
		return ir.Record(
			ir.F("clk", clk.Flipped()),
			ir.F("in", ir.Array(w, ir.BitIn())),
			ir.F("out", ir.Array(w, ir.Bit())),
		), nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := ns.NewGeneratorDecl("reg", regT, ir.Params{"init": ir.ParamInt}); err != nil {
		return nil, err
	}

	addT, err := ns.NewTypeGen("addT", widthParams, func(args ir.Args) (ir.Type, error) {
		w, err := positive(args, "width")
		if err != nil {
			return nil, err
		}
		return ir.Record(
			ir.F("in0", ir.Array(w, ir.BitIn())),
			ir.F("in1", ir.Array(w, ir.BitIn())),
			ir.F("out", ir.Array(w, ir.Bit())),
		), nil
	})
	if err != nil {
		return nil, err
	}
	add, err := ns.NewGeneratorDecl("add", addT, nil)
	if err != nil {
		return nil, err
	}

	treeT, err := ns.NewTypeGen("addtreeT", ir.Params{"width": ir.ParamInt, "n": ir.ParamInt}, func(args ir.Args) (ir.Type, error) {
		w, err := positive(args, "width")
		if err != nil {
			return nil, err
		}
		n, err := positive(args, "n")
		if err != nil {
			return nil, err
		}
		return ir.Record(
			ir.F("in", ir.Array(n, ir.Array(w, ir.BitIn()))),
			ir.F("out", ir.Array(w, ir.Bit())),
		), nil
	})
	if err != nil {
		return nil, err
	}
	tree, err := ns.NewGeneratorDecl("addtree", treeT, nil)
	if err != nil {
		return nil, err
	}
	wire, err := ns.Generator("wire")
	if err != nil {
		return nil, err
	}
	tree.SetDefinitionFunc(addTreeDef(tree, add, wire))

	return ns, nil
}

// addTreeDef sums in[0..n) as add(tree(lo), tree(hi)) with lo = n/2.
func addTreeDef(tree, add, wire *ir.Generator) ir.GeneratorDefFunc {
	return func(def *ir.Definition, args ir.Args) error {
		width := args["width"]
		n := int(args["n"].(ir.Int))

		if n == 1 {
			if _, err := def.AddInstance("w", wire, ir.Args{"width": width}); err != nil {
				return err
			}
			return connectAll(def,
				"self.in.0", "w.in",
				"w.out", "self.out",
			)
		}

		if _, err := def.AddInstance("sum", add, ir.Args{"width": width}); err != nil {
			return err
		}
		lo := n / 2
		hi := n - lo
		if _, err := def.AddInstance("lo", tree, ir.Args{"width": width, "n": ir.Int(lo)}); err != nil {
			return err
		}
		if _, err := def.AddInstance("hi", tree, ir.Args{"width": width, "n": ir.Int(hi)}); err != nil {
			return err
		}
		for i := range n {
			var err error
			if i < lo {
				err = def.Connect(fmt.Sprintf("self.in.%d", i), fmt.Sprintf("lo.in.%d", i))
			} else {
				err = def.Connect(fmt.Sprintf("self.in.%d", i), fmt.Sprintf("hi.in.%d", i-lo))
			}
			if err != nil {
				return err
			}
		}
		return connectAll(def,
			"lo.out", "sum.in0",
			"hi.out", "sum.in1",
			"sum.out", "self.out",
		)
	}
}

func connectAll(def *ir.Definition, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := def.Connect(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func positive(args ir.Args, name string) (int, error) {
	v, ok := args[name].(ir.Int)
	if !ok {
		return 0, fmt.Errorf("%s must be an int", name)
	}
	if v < 1 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, v)
	}
	return int(v), nil
}
