package linear

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-blackswan/calsync-agent/internal/engine"
)

const issuesQuery = `
query Issues($first: Int!) {
  issues(first: $first) {
    nodes {
      id
      title
      description
      url
      dueDate
      startedAt
      completedAt
      createdAt
      project { id name description url targetDate }
      parent { id title url }
      children { nodes { id title url } }
      labels { nodes { name color } }
    }
  }
}
`

const projectsQuery = `
query Projects($first: Int!) {
  projects(first: $first) {
    nodes {
      id
      name
      description
      url
      targetDate
      startedAt
      completedAt
      createdAt
    }
  }
}
`

type issueNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	DueDate     string `json:"dueDate"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt"`
	CreatedAt   string `json:"createdAt"`
	Project     *struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		URL         string `json:"url"`
		TargetDate  string `json:"targetDate"`
	} `json:"project"`
	Parent *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"parent"`
	Children struct {
		Nodes []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"nodes"`
	} `json:"children"`
	Labels struct {
		Nodes []struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		} `json:"nodes"`
	} `json:"labels"`
}

type projectNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	TargetDate  string `json:"targetDate"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt"`
	CreatedAt   string `json:"createdAt"`
}

// Feed is the item source handed to the reconciliation engine. Issues and
// projects are fetched as separate feeds; one feed failing does not suppress
// the other.
type Feed struct {
	client       *Client
	issueLimit   int
	projectLimit int
}

// NewFeed creates a Feed over the given client.
func NewFeed(client *Client, issueLimit, projectLimit int) *Feed {
	if issueLimit <= 0 {
		issueLimit = 200
	}
	if projectLimit <= 0 {
		projectLimit = 100
	}
	return &Feed{client: client, issueLimit: issueLimit, projectLimit: projectLimit}
}

// ListItems returns all issues and projects as normalized items. It returns
// an error only when every feed failed; a partial failure is logged and the
// surviving feed's items are returned.
func (f *Feed) ListItems(ctx context.Context) ([]engine.Item, error) {
	var items []engine.Item
	var errs []error

	issues, err := f.fetchIssues(ctx)
	if err != nil {
		f.client.logger.Warn().Err(err).Msg("fetching issues failed, treating feed as empty")
		errs = append(errs, fmt.Errorf("issues: %w", err))
	} else {
		f.client.logger.Info().Int("count", len(issues)).Msg("issues fetched")
		items = append(items, issues...)
	}

	projects, err := f.fetchProjects(ctx)
	if err != nil {
		f.client.logger.Warn().Err(err).Msg("fetching projects failed, treating feed as empty")
		errs = append(errs, fmt.Errorf("projects: %w", err))
	} else {
		f.client.logger.Info().Int("count", len(projects)).Msg("projects fetched")
		items = append(items, projects...)
	}

	if len(errs) == 2 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (f *Feed) fetchIssues(ctx context.Context) ([]engine.Item, error) {
	var data struct {
		Issues struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issues"`
	}
	if err := f.client.query(ctx, issuesQuery, map[string]interface{}{"first": f.issueLimit}, &data); err != nil {
		return nil, err
	}

	items := make([]engine.Item, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		items = append(items, issueToItem(n))
	}
	return items, nil
}

func (f *Feed) fetchProjects(ctx context.Context) ([]engine.Item, error) {
	var data struct {
		Projects struct {
			Nodes []projectNode `json:"nodes"`
		} `json:"projects"`
	}
	if err := f.client.query(ctx, projectsQuery, map[string]interface{}{"first": f.projectLimit}, &data); err != nil {
		return nil, err
	}

	items := make([]engine.Item, 0, len(data.Projects.Nodes))
	for _, n := range data.Projects.Nodes {
		items = append(items, projectToItem(n))
	}
	return items, nil
}

func issueToItem(n issueNode) engine.Item {
	item := engine.Item{
		ID:          n.ID,
		Kind:        engine.KindIssue,
		Title:       n.Title,
		Description: n.Description,
		URL:         n.URL,
		DueDate:     n.DueDate,
		CompletedAt: n.CompletedAt,
		StartedAt:   n.StartedAt,
		CreatedAt:   n.CreatedAt,
	}

	if p := n.Project; p != nil {
		item.ContainerTargetDate = p.TargetDate
		item.Container = &engine.Container{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			URL:         p.URL,
		}
	}
	if p := n.Parent; p != nil {
		item.Parent = &engine.Relation{ID: p.ID, Title: p.Title, URL: p.URL}
	}
	for _, ch := range n.Children.Nodes {
		item.Children = append(item.Children, engine.Relation{ID: ch.ID, Title: ch.Title, URL: ch.URL})
	}
	for _, l := range n.Labels.Nodes {
		item.Labels = append(item.Labels, engine.Label{Name: l.Name, Color: l.Color})
	}
	return item
}

func projectToItem(n projectNode) engine.Item {
	// A project's target date is its own due date.
	return engine.Item{
		ID:          n.ID,
		Kind:        engine.KindProject,
		Title:       n.Name,
		Description: n.Description,
		URL:         n.URL,
		DueDate:     n.TargetDate,
		CompletedAt: n.CompletedAt,
		StartedAt:   n.StartedAt,
		CreatedAt:   n.CreatedAt,
	}
}
