package github

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
)

const defaultSARIFDriver = "airlock"

// The code-scanning endpoint accepts findings only as SARIF uploads;
// these types shape the minimal document one alert message needs.
type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name string `json:"name"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}

// sarifLevel folds the message severity enum onto SARIF levels.
func sarifLevel(severity string) string {
	switch severity {
	case "error":
		return "error"
	case "warning":
		return "warning"
	default: // info, note
		return "note"
	}
}

// buildSARIF wraps one alert message into a single-result SARIF log.
func buildSARIF(driver string, msg intake.Message) ([]byte, error) {
	line, _ := msg.Int("line")
	column, _ := msg.Int("column")

	ruleID := driver
	if suffix := msg.String("ruleIdSuffix"); suffix != "" {
		ruleID = driver + "-" + suffix
	}

	doc := sarifLog{
		Version: "2.1.0",
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{Name: driver}},
			Results: []sarifResult{{
				RuleID:  ruleID,
				Level:   sarifLevel(msg.String("severity")),
				Message: sarifMessage{Text: msg.String("message")},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: msg.String("file")},
						Region:           sarifRegion{StartLine: line, StartColumn: column},
					},
				}},
			}},
		}},
	}
	return json.Marshal(doc)
}

// encodeSARIF compresses and encodes the document the way the upload
// endpoint requires.
func encodeSARIF(doc []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return "", errors.Wrap(err, "compressing sarif")
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrap(err, "compressing sarif")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// commitAndRef resolves the commit and ref the alert attaches to: the
// workflow environment when present, the enclosing worktree otherwise.
func commitAndRef() (string, string) {
	commit := strings.TrimSpace(os.Getenv("GITHUB_SHA"))
	ref := strings.TrimSpace(os.Getenv("GITHUB_REF"))
	if commit != "" && ref != "" {
		return commit, ref
	}

	repo, err := git.PlainOpenWithOptions(".", &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return commit, ref
	}
	head, err := repo.Head()
	if err != nil {
		return commit, ref
	}
	if commit == "" {
		commit = head.Hash().String()
	}
	if ref == "" {
		ref = head.Name().String()
	}
	return commit, ref
}

// codeScanningAlertHandler uploads one finding as a SARIF document.
type codeScanningAlertHandler struct {
	client *Client
	driver string
}

func (h *codeScanningAlertHandler) Type() string { return "create_code_scanning_alert" }

func (h *codeScanningAlertHandler) Handle(ctx context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	doc, err := buildSARIF(h.driver, msg)
	if err != nil {
		return dispatch.Outcome{}, errors.Wrap(err, "building sarif")
	}
	encoded, err := encodeSARIF(doc)
	if err != nil {
		return dispatch.Outcome{}, err
	}

	commit, gitRef := commitAndRef()
	if commit == "" || gitRef == "" {
		return dispatch.Fail(errors.New("cannot determine the commit and ref for the alert upload")), nil
	}

	_, err = h.client.Run(ctx, "api", "-X", "POST",
		fmt.Sprintf("repos/%s/code-scanning/sarifs", h.client.Repo()),
		"-f", "commit_sha="+commit,
		"-f", "ref="+gitRef,
		"-f", "sarif="+encoded,
	)
	if err != nil {
		return dispatch.Fail(err), nil
	}

	line, _ := msg.Int("line")
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("uploaded %s alert for %s:%d", msg.String("severity"), msg.String("file"), line),
	}), nil
}
