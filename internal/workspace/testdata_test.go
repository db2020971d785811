package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/domain"
	"github.com/ashureev/lastminute/internal/store"
)

// onePixelPNG is a 1x1 transparent PNG.
const onePixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

const testOwner = "anon_0123456789abcdef0123456789abcdef"

type stubTutor struct {
	reply string
}

func (s stubTutor) Chat(context.Context, []domain.Message, string) (string, error) {
	return s.reply, nil
}

func (s stubTutor) Analyze(_ context.Context, req agent.AnalysisRequest) (string, error) {
	return "analysis of " + req.AnnotationType, nil
}

func testSession() *domain.Session {
	return &domain.Session{
		ID:        "s-1",
		Filename:  "notes.pdf",
		Concepts:  []string{"recursion"},
		Checklist: []string{"Review base cases"},
		InteractiveStory: domain.InteractiveStory{
			Title: "The Recursive Mission",
			Topics: []domain.TopicStorylineCard{
				{
					Title: "Base cases",
					Story: "Every descent needs a floor.",
					Quiz: &domain.TopicQuiz{
						Question:      "What stops a recursive function?",
						Options:       []string{"A base case", "Another recursive call"},
						CorrectIndex:  0,
						Explanation:   "The base case returns without recursing.",
						Misconception: "Another call only goes deeper.",
						FocusConcept:  "base case",
					},
				},
				{Title: "Call stack", Story: "Frames pile up and unwind."},
			},
		},
		FinalStorytelling: "Once upon a stack frame.",
		StoryBeats: []domain.StoryBeat{
			{Label: "Call stack", Image: onePixelPNG, Caption: "A tower of frames"},
		},
	}
}

func newTestRepo(t *testing.T) *store.SQLiteStore {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "workspace.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.CreateSession(context.Background(), testSession()); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return repo
}

func testDeps(repo store.Repository) Deps {
	tutor := stubTutor{reply: "Recursion is a function calling itself."}
	return Deps{Repo: repo, Chat: tutor, Analysis: tutor}
}
