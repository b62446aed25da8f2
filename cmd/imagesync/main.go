package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const usage = `Usage: imagesync <command> [flags]

Commands:
  stats                                   assignment stats and per-image candidates
  suggest                                 suggestions for unassigned images
  match <file>                            ranked products for one image file name
  apply -mode live|artifact -pair id=url [-pair id=url ...] [-out products.js] [-admin N]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:], cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "imagesync %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, cfg *config.Config, out io.Writer) error {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "stats":
		st, err := a.Reconcile.AssignmentStats(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, st)
	case "suggest":
		s, err := a.Reconcile.SuggestProductUpdates(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, s)
	case "match":
		if len(args) != 1 {
			return errors.New("match needs exactly one file name")
		}
		ps, err := a.Reconcile.SuggestMatches(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(out, ps)
	case "apply":
		return runApply(ctx, a.Reconcile, args, out)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func runApply(ctx context.Context, uc *usecase.ReconcileUsecase, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	mode := fs.String("mode", string(model.ApplyArtifact), "live or artifact")
	var pairs pairList
	fs.Var(&pairs, "pair", "id=url assignment (repeatable)")
	outFile := fs.String("out", "", "write the artifact module to this file")
	adminID := fs.Int64("admin", 1, "admin id recorded in the audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if len(pairs) == 0 {
		return errors.New("no pairs given (use -pair id=url)")
	}

	res, err := uc.ApplyAssignments(ctx, *adminID, pairs, model.ApplyMode(*mode))
	if err != nil {
		return err
	}

	if res.Mode == model.ApplyArtifact && *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(res.Artifact+"\n"), 0o644); err != nil {
			return err
		}
		res.Artifact = ""
		fmt.Fprintf(out, "wrote %s\n", *outFile)
	}
	return writeJSON(out, res)
}

// -pair を繰り返し受け取る。URLに , や = が入っていてもよい
type pairList []model.Assignment

func (p *pairList) String() string {
	parts := make([]string, 0, len(*p))
	for _, a := range *p {
		parts = append(parts, fmt.Sprintf("%d=%s", a.ProductID, a.ImageURL))
	}
	return strings.Join(parts, " ")
}

func (p *pairList) Set(v string) error {
	a, err := parsePair(v)
	if err != nil {
		return err
	}
	*p = append(*p, a)
	return nil
}

// "3=https://..." を割り当てにする（最初の=で分ける）
func parsePair(s string) (model.Assignment, error) {
	id, url, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return model.Assignment{}, fmt.Errorf("invalid pair %q (want id=url)", s)
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || pid <= 0 {
		return model.Assignment{}, fmt.Errorf("invalid product id %q", id)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return model.Assignment{}, fmt.Errorf("invalid pair %q (empty url)", s)
	}
	return model.Assignment{ProductID: pid, ImageURL: url}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
