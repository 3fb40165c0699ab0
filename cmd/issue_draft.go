package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/backlogdeck/bld/internal/llm"
	"github.com/backlogdeck/bld/internal/models"
)

// issueCreateFromFileRun drafts issues from a notes file with an LLM,
// previews them, and creates them on Backlog.
func issueCreateFromFileRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("file is empty: %s", file)
	}

	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
	}
	model := viper.GetString("anthropic.model")

	e, err := getEngine()
	if err != nil {
		return err
	}
	ctx := context.Background()

	details, err := e.AllProjectDetails(ctx, false)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	options := make([]llm.ProjectOption, len(details))
	for i, d := range details {
		typeNames := make([]string, len(d.IssueTypes))
		for j, it := range d.IssueTypes {
			typeNames[j] = it.Name
		}
		options[i] = llm.ProjectOption{
			Key:        d.ProjectKey,
			Name:       d.Name,
			IssueTypes: typeNames,
		}
	}

	ui.Info("Drafting issues with LLM (%s)...", model)
	client := llm.NewClient(apiKey, model)
	drafts, err := client.DraftIssues(ctx, content, options)
	if err != nil {
		return fmt.Errorf("draft issues: %w", err)
	}

	if len(drafts) == 0 {
		ui.Info("No issues drafted from file.")
		return nil
	}

	// Preview table
	table := ui.Table([]string{"#", "Project", "Type", "Summary", "Due"})
	for i, d := range drafts {
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			d.Project,
			d.IssueType,
			truncate(d.Summary, 50),
			d.DueDate,
		})
	}
	_ = table.Render()

	if dryRun {
		ui.DryRunMsg("Would create %d issues", len(drafts))
		return nil
	}

	return createDraftedIssues(ctx, e, details, drafts)
}

// createDraftedIssues resolves projects/types and creates the drafts on
// Backlog, skipping any the model could not place.
func createDraftedIssues(ctx context.Context, e engineCreator, details []models.ProjectDetails, drafts []llm.Draft) error {
	byKey := make(map[string]*models.ProjectDetails, len(details))
	for i := range details {
		byKey[strings.ToUpper(details[i].ProjectKey)] = &details[i]
	}

	created := 0
	skipped := 0
	for _, d := range drafts {
		proj, ok := byKey[strings.ToUpper(d.Project)]
		if !ok {
			ui.Warning("Skipping %q: project %q not found", d.Summary, d.Project)
			skipped++
			continue
		}

		typeID := 0
		for _, it := range proj.IssueTypes {
			if strings.EqualFold(it.Name, d.IssueType) {
				typeID = it.ID
				break
			}
		}
		if typeID == 0 && len(proj.IssueTypes) > 0 {
			typeID = proj.IssueTypes[0].ID
		}
		if typeID == 0 {
			ui.Warning("Skipping %q: no issue types in project %s", d.Summary, proj.ProjectKey)
			skipped++
			continue
		}

		params := models.CreateIssueParams{
			ProjectID:   proj.ProjectID,
			IssueTypeID: typeID,
			Summary:     d.Summary,
			Description: d.Description,
			DueDate:     d.DueDate,
		}
		if _, err := e.CreateIssue(ctx, params); err != nil {
			ui.Warning("Failed to create %q: %v", d.Summary, err)
			skipped++
			continue
		}
		created++
	}

	ui.Success("Created %d issues", created)
	if skipped > 0 {
		ui.Warning("Skipped %d issues", skipped)
	}
	return nil
}

// engineCreator is the subset of the engine used when creating drafted
// issues, kept narrow for tests.
type engineCreator interface {
	CreateIssue(ctx context.Context, params models.CreateIssueParams) (*models.CreatedIssue, error)
}
