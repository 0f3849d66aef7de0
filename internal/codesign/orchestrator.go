// Package codesign signs a built macOS application bundle inside-out.
//
// Every nested framework, bundle, library and executable gets its own
// signature before whatever contains it, and the bundle itself is signed
// last. Zip archives carrying binaries (such as a zipped Python stdlib) are
// unpacked, their binaries signed, and repacked before the walk reaches the
// items that contain them. A deep verification of the whole bundle closes
// the run; a verification failure is fatal.
package codesign

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/sirupsen/logrus"
)

// Orchestrator drives codesign over one bundle.
type Orchestrator struct {
	Runner   runner.Runner
	Log      logrus.FieldLogger
	Identity string
	// Entitlements, when set, is applied to executables and the bundle root.
	Entitlements string
	// TempDir is the parent of archive extraction directories ("" = system default).
	TempDir string
}

// Plan returns the bundle's items in signing order: every item precedes
// each framework or bundle containing it, and the root comes last.
func Plan(bundle string) ([]Item, error) {
	items, err := Classify(bundle)
	if err != nil {
		return nil, err
	}
	root := Item{Path: bundle, Rel: "", Kind: KindBundle}
	return order(root, items)
}

func order(root Item, items []Item) ([]Item, error) {
	g := graph.New(func(i Item) string { return i.Rel }, graph.Directed(), graph.Acyclic())

	if err := g.AddVertex(root); err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := g.AddVertex(it); err != nil {
			return nil, fmt.Errorf("add %s: %w", it.Rel, err)
		}
	}

	// Edge inner → container: the inner item must be signed first.
	for _, it := range items {
		if err := g.AddEdge(it.Rel, root.Rel); err != nil {
			return nil, err
		}
		for _, c := range items {
			if c.Kind.container() && c.Rel != it.Rel && strings.HasPrefix(it.Rel, c.Rel+"/") {
				if err := g.AddEdge(it.Rel, c.Rel); err != nil {
					return nil, err
				}
			}
		}
	}

	keys, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("failed to order signing plan: %w", err)
	}

	out := make([]Item, 0, len(keys))
	for _, k := range keys {
		it, err := g.Vertex(k)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// Run signs bundle inside-out and verifies the result.
func (o *Orchestrator) Run(ctx context.Context, bundle string) error {
	if !exists(bundle) {
		return fmt.Errorf("bundle %s does not exist", bundle)
	}

	plan, err := Plan(bundle)
	if err != nil {
		return err
	}

	// Archives first: repacking rewrites their bytes, which would
	// invalidate any container signed before them.
	for _, it := range plan {
		if it.Kind == KindArchive {
			if err := o.signArchive(ctx, it.Path); err != nil {
				return err
			}
		}
	}

	for _, it := range plan {
		if it.Kind == KindArchive {
			continue
		}
		if err := o.sign(ctx, it); err != nil {
			return err
		}
	}

	return o.Verify(ctx, bundle)
}

// Verify runs a deep, strict signature verification over bundle.
func (o *Orchestrator) Verify(ctx context.Context, bundle string) error {
	o.Log.WithField("path", bundle).Info("Verifying signature")
	err := o.Runner.Run(ctx, runner.Command{
		Name: "codesign",
		Args: []string{"--verify", "--deep", "--strict", "--verbose=2", bundle},
	})
	if err != nil {
		return fmt.Errorf("signature verification failed for %s: %w", bundle, err)
	}
	return nil
}

func (o *Orchestrator) sign(ctx context.Context, it Item) error {
	args := []string{"--force", "--verbose=4", "--timestamp", "--options", "runtime"}
	if o.Entitlements != "" && (it.Kind == KindExecutable || it.Rel == "") {
		args = append(args, "--entitlements", o.Entitlements)
	}
	args = append(args, "--sign", o.Identity, it.Path)

	o.Log.WithFields(logrus.Fields{"path": it.Path, "kind": it.Kind}).Debug("Signing")
	if err := o.Runner.Run(ctx, runner.Command{Name: "codesign", Args: args}); err != nil {
		return fmt.Errorf("code signing failed for %s: %w", it.Path, err)
	}
	return nil
}

// signArchive unpacks a zip, signs its binaries inside-out and repacks it
// in place. The extraction directory is removed on every path.
func (o *Orchestrator) signArchive(ctx context.Context, archive string) error {
	tmp, err := os.MkdirTemp(o.TempDir, "pew-codesign-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	o.Log.WithField("path", archive).Info("Signing archive contents")
	if err := files.ExtractZip(archive, tmp); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", archive, err)
	}

	items, err := Classify(tmp)
	if err != nil {
		return err
	}
	inner, err := order(Item{Path: tmp, Rel: "", Kind: KindBundle}, items)
	if err != nil {
		return err
	}
	for _, it := range inner {
		// The extraction root is not a bundle; nested archives are not unpacked.
		if it.Rel == "" || it.Kind == KindArchive {
			continue
		}
		if err := o.sign(ctx, it); err != nil {
			return err
		}
	}

	if err := repackZip(archive, tmp); err != nil {
		return fmt.Errorf("failed to repack %s: %w", archive, err)
	}
	return nil
}
