package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/triage/internal/domain/triage"
)

// catalogFile is the YAML seed format. Red flags name their symptoms; the
// names are resolved to ids at load time.
type catalogFile struct {
	Symptoms []struct {
		Name        string  `yaml:"name"`
		Description *string `yaml:"description"`
		Severity    int     `yaml:"severity"`
		RiskLevel   string  `yaml:"risk_level"`
		BodySystem  *string `yaml:"body_system"`
	} `yaml:"symptoms"`
	RedFlags []struct {
		Name          string   `yaml:"name"`
		Symptoms      []string `yaml:"symptoms"`
		TriggerAction string   `yaml:"trigger_action"`
		Description   *string  `yaml:"description"`
		Priority      int      `yaml:"priority"`
	} `yaml:"red_flags"`
}

func parseCatalog(data []byte) (*catalogFile, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(cf.Symptoms))
	for _, s := range cf.Symptoms {
		if s.Name == "" {
			return nil, fmt.Errorf("catalog: symptom without a name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("catalog: symptom %q listed twice", s.Name)
		}
		seen[s.Name] = true
	}
	for _, rf := range cf.RedFlags {
		if rf.Name == "" || len(rf.Symptoms) == 0 {
			return nil, fmt.Errorf("catalog: red flag %q needs a name and at least one symptom", rf.Name)
		}
	}
	return &cf, nil
}

// catalogWriter is the part of *triage.Service the loader uses.
type catalogWriter interface {
	ListSymptoms(ctx context.Context) ([]triage.Symptom, error)
	CreateSymptom(ctx context.Context, s *triage.Symptom) error
	ListRedFlags(ctx context.Context) ([]triage.RedFlag, error)
	CreateRedFlag(ctx context.Context, rf *triage.RedFlag) error
}

type loadSummary struct {
	SymptomsCreated int
	SymptomsSkipped int
	RedFlagsCreated int
	RedFlagsSkipped int
}

// loadCatalog creates every entry that does not exist yet. Entries are
// matched by name, so loading the same file twice is a no-op.
func loadCatalog(ctx context.Context, w catalogWriter, cf *catalogFile, logger zerolog.Logger) (loadSummary, error) {
	var sum loadSummary

	for _, in := range cf.Symptoms {
		s := &triage.Symptom{
			Name:        in.Name,
			Description: in.Description,
			Severity:    in.Severity,
			RiskTier:    triage.RiskTier(in.RiskLevel),
			BodySystem:  in.BodySystem,
		}
		err := w.CreateSymptom(ctx, s)
		switch {
		case errors.Is(err, triage.ErrConflict):
			sum.SymptomsSkipped++
		case err != nil:
			return sum, fmt.Errorf("symptom %q: %w", in.Name, err)
		default:
			sum.SymptomsCreated++
			logger.Debug().Str("symptom", s.Name).Msg("symptom created")
		}
	}

	symptoms, err := w.ListSymptoms(ctx)
	if err != nil {
		return sum, err
	}
	byName := make(map[string]uuid.UUID, len(symptoms))
	for _, s := range symptoms {
		byName[s.Name] = s.ID
	}

	existing, err := w.ListRedFlags(ctx)
	if err != nil {
		return sum, err
	}
	have := make(map[string]bool, len(existing))
	for _, rf := range existing {
		have[rf.Name] = true
	}

	for _, in := range cf.RedFlags {
		if have[in.Name] {
			sum.RedFlagsSkipped++
			continue
		}
		ids := make([]uuid.UUID, 0, len(in.Symptoms))
		for _, name := range in.Symptoms {
			id, ok := byName[name]
			if !ok {
				return sum, fmt.Errorf("red flag %q: unknown symptom %q", in.Name, name)
			}
			ids = append(ids, id)
		}
		rf := &triage.RedFlag{
			Name:               in.Name,
			SymptomCombination: ids,
			TriggerAction:      triage.Action(in.TriggerAction),
			Description:        in.Description,
			Priority:           in.Priority,
		}
		if err := w.CreateRedFlag(ctx, rf); err != nil {
			return sum, fmt.Errorf("red flag %q: %w", in.Name, err)
		}
		have[in.Name] = true
		sum.RedFlagsCreated++
		logger.Debug().Str("red_flag", rf.Name).Msg("red flag created")
	}
	return sum, nil
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the symptom and red flag catalog",
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load symptoms and red flags from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}
			cf, err := parseCatalog(data)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			symptoms, redFlags, closeCache, err := catalogRepos(ctx, cfg, pool, logger)
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer closeCache()

			svc := triage.NewService(triage.NewSessionRepoPG(pool), symptoms, redFlags)
			sum, err := loadCatalog(ctx, svc, cf, logger)
			if err != nil {
				return err
			}
			logger.Info().
				Int("symptoms_created", sum.SymptomsCreated).
				Int("symptoms_skipped", sum.SymptomsSkipped).
				Int("red_flags_created", sum.RedFlagsCreated).
				Int("red_flags_skipped", sum.RedFlagsSkipped).
				Msg("catalog loaded")
			return nil
		},
	}
	loadCmd.Flags().String("file", "./catalog/default.yaml", "Catalog YAML file")
	cmd.AddCommand(loadCmd)

	return cmd
}
