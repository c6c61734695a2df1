// specification/client.go
package specification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gewnthar/registers/config"
	"github.com/gewnthar/registers/models"
	"gopkg.in/yaml.v3"
)

var errNoFrontmatter = errors.New("markdown has no frontmatter")

// Client reads dataset and field definitions from the specification
// repository, where each is a markdown file with YAML frontmatter.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(cfg config.SpecificationConfig) *Client {
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type datasetFrontmatter struct {
	Dataset       string `yaml:"dataset"`
	Name          string `yaml:"name"`
	Prefix        string `yaml:"prefix"`
	EntityMinimum string `yaml:"entity-minimum"`
	EntityMaximum string `yaml:"entity-maximum"`
	EndDate       string `yaml:"end-date"`
	Fields        []struct {
		Field string `yaml:"field"`
	} `yaml:"fields"`
}

type fieldFrontmatter struct {
	Field       string `yaml:"field"`
	Name        string `yaml:"name"`
	Datatype    string `yaml:"datatype"`
	Description string `yaml:"description"`
}

// DatasetURL is the markdown location of a dataset definition.
func (c *Client) DatasetURL(id string) string {
	return fmt.Sprintf("%s/specification/main/content/dataset/%s.md", c.baseURL, id)
}

// FieldURL is the markdown location of a field definition.
func (c *Client) FieldURL(field string) string {
	return fmt.Sprintf("%s/specification/main/content/field/%s.md", c.baseURL, field)
}

// Dataset fetches a dataset definition and each of its fields. A field whose
// definition cannot be read is kept as a string field named after its slug.
func (c *Client) Dataset(ctx context.Context, id string) (*models.Dataset, error) {
	var front datasetFrontmatter
	if err := c.fetchFrontmatter(ctx, c.DatasetURL(id), &front); err != nil {
		return nil, err
	}

	ds := &models.Dataset{ID: id, Name: front.Name, Prefix: front.Prefix}
	if ds.Name == "" {
		ds.Name = id
	}
	var err error
	if ds.EntityMinimum, err = parseEntity(front.EntityMinimum); err != nil {
		return nil, fmt.Errorf("dataset %s entity-minimum: %w", id, err)
	}
	if ds.EntityMaximum, err = parseEntity(front.EntityMaximum); err != nil {
		return nil, fmt.Errorf("dataset %s entity-maximum: %w", id, err)
	}
	if ds.EndDate, err = models.ParseDate(front.EndDate); err != nil {
		return nil, fmt.Errorf("dataset %s end-date: %w", id, err)
	}

	for _, f := range front.Fields {
		if f.Field == "" {
			continue
		}
		ds.Fields = append(ds.Fields, c.field(ctx, f.Field))
	}
	if len(ds.Fields) == 0 {
		return nil, fmt.Errorf("dataset %s has no fields", id)
	}
	slog.Info("Specification: fetched dataset", "dataset", id, "fields", len(ds.Fields))
	return ds, nil
}

func (c *Client) field(ctx context.Context, slug string) models.Field {
	f := models.Field{Field: slug, Name: slug, Datatype: models.DatatypeString}
	var front fieldFrontmatter
	if err := c.fetchFrontmatter(ctx, c.FieldURL(slug), &front); err != nil {
		slog.Warn("Specification: using default field definition", "field", slug, "error", err)
		return f
	}
	if front.Name != "" {
		f.Name = front.Name
	}
	if front.Datatype != "" {
		f.Datatype = front.Datatype
	}
	f.Description = front.Description
	return f
}

func (c *Client) fetchFrontmatter(ctx context.Context, url string, out any) error {
	body, err := c.fetch(ctx, url)
	if err != nil {
		return err
	}
	front, err := Frontmatter(body)
	if err != nil {
		return fmt.Errorf("%s: %w", url, err)
	}
	if err := yaml.Unmarshal(front, out); err != nil {
		return fmt.Errorf("failed to parse frontmatter of %s: %w", url, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: received status code %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return body, nil
}

// Frontmatter returns the YAML block between the leading "---" lines of a
// markdown document.
func Frontmatter(markdown []byte) ([]byte, error) {
	markdown = bytes.ReplaceAll(markdown, []byte("\r\n"), []byte("\n"))
	rest, ok := bytes.CutPrefix(markdown, []byte("---\n"))
	if !ok {
		return nil, errNoFrontmatter
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, errNoFrontmatter
	}
	return rest[:end+1], nil
}

func parseEntity(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}
