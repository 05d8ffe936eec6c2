// Package repl implements the line-oriented chat loop.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"
	"bankbot/internal/domain"

	"go.uber.org/zap"
)

const Banner = `
============================
  BANKING ASSISTANT (CLI)
============================
Type your question, or:
  :help   Show commands
  :train  Retrain ML model from DB examples
  :stats  Show interaction and feedback stats
  :quit   Exit
`

const helpText = `:help   Show this message
:train  Retrain model
:stats  Show stats
:quit   Exit
`

const feedbackPrompt = "bot> Was this helpful? (y/n) or type 'correct <intent>' or 'fix <better answer>': "

// Assistant is what the loop needs from assistant.Service.
type Assistant interface {
	Ask(ctx context.Context, text string) (assistant.Reply, error)
	Teach(ctx context.Context, question, answer string, confidence float64) (int64, error)
	RecordFeedback(ctx context.Context, in assistant.FeedbackInput) (int64, error)
	Retrain(ctx context.Context) (classifier.Report, error)
	Stats(ctx context.Context, since time.Time) (assistant.Stats, error)
}

type Session struct {
	// Interactive enables the feedback and teach prompts. Piped input is
	// answered line by line without them.
	Interactive bool

	svc    Assistant
	in     *bufio.Scanner
	out    io.Writer
	logger *zap.Logger
}

func New(svc Assistant, in io.Reader, out io.Writer, logger *zap.Logger) *Session {
	return &Session{Interactive: true, svc: svc, in: bufio.NewScanner(in), out: out, logger: logger.Named("repl")}
}

// Run reads questions until :quit, end of input or ctx cancellation.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprint(s.out, Banner)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, ok := s.prompt("you> ")
		if !ok {
			fmt.Fprintln(s.out, "\nExiting. Bye!")
			return s.in.Err()
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if quit := s.command(ctx, strings.ToLower(strings.TrimSpace(line[1:]))); quit {
				return nil
			}
			continue
		}
		s.turn(ctx, line)
	}
}

func (s *Session) command(ctx context.Context, cmd string) bool {
	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help":
		fmt.Fprint(s.out, helpText)
	case "train":
		report, err := s.svc.Retrain(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "Training failed: %v\n", err)
			return false
		}
		fmt.Fprintf(s.out, "Model retrained. Mini-report:\n%s\n", report)
	case "stats":
		st, err := s.svc.Stats(ctx, time.Time{})
		if err != nil {
			fmt.Fprintf(s.out, "Stats failed: %v\n", err)
			return false
		}
		assistant.WriteStats(s.out, st)
	default:
		fmt.Fprintln(s.out, "Unknown command. Type :help")
	}
	return false
}

func (s *Session) turn(ctx context.Context, text string) {
	reply, err := s.svc.Ask(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactUnavailable) {
			fmt.Fprintln(s.out, "bot> No trained model is available. Run `bankbot seed` then `bankbot train`.")
			return
		}
		s.logger.Error("ask failed", zap.Error(err))
		fmt.Fprintf(s.out, "bot> Something went wrong: %v\n", err)
		return
	}

	if reply.NeedsTeach() {
		if !s.Interactive {
			fmt.Fprintf(s.out, "bot> I'm not sure about that (confidence=%.2f).\n", reply.Confidence)
			return
		}
		s.teach(ctx, text, reply.Confidence)
		return
	}

	fmt.Fprintf(s.out, "bot> %s (intent=%s, conf=%.2f)\n", reply.Answer, reply.Intent, reply.Confidence)
	if !s.Interactive {
		return
	}
	fb, ok := s.prompt(feedbackPrompt)
	if !ok {
		return
	}
	in, ok := parseFeedback(fb)
	if !ok {
		return
	}
	in.InteractionID = reply.InteractionID
	if _, err := s.svc.RecordFeedback(ctx, in); err != nil {
		var unknown *assistant.UnknownIntentError
		if errors.As(err, &unknown) {
			if len(unknown.Suggestions) > 0 {
				fmt.Fprintf(s.out, "bot> I don't know the intent %q. Did you mean: %s?\n", unknown.Intent, strings.Join(unknown.Suggestions, ", "))
			} else {
				fmt.Fprintf(s.out, "bot> I don't know the intent %q.\n", unknown.Intent)
			}
			return
		}
		s.logger.Error("record feedback failed", zap.Error(err))
		fmt.Fprintf(s.out, "bot> Could not save feedback: %v\n", err)
	}
}

func (s *Session) teach(ctx context.Context, question string, confidence float64) {
	fmt.Fprintf(s.out, "bot> I'm not sure about that (confidence=%.2f). Would you like to teach me the answer? (yes/no)\n", confidence)
	yn, ok := s.prompt("you> ")
	if !ok {
		return
	}
	switch strings.ToLower(yn) {
	case "y", "yes":
	default:
		fmt.Fprintln(s.out, "bot> Okay! Ask me something else.")
		return
	}

	fmt.Fprintln(s.out, "bot> Please type the correct answer I should give next time:")
	answer, ok := s.prompt("you> ")
	if !ok {
		return
	}
	if answer == "" {
		fmt.Fprintln(s.out, "bot> No worries. Ask me something else!")
		return
	}
	if _, err := s.svc.Teach(ctx, question, answer, confidence); err != nil {
		s.logger.Error("teach failed", zap.Error(err))
		fmt.Fprintf(s.out, "bot> Could not save that: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, "bot> Thanks! I've saved that. A human can review and add it to my knowledge.")
}

func (s *Session) prompt(p string) (string, bool) {
	fmt.Fprint(s.out, p)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

// parseFeedback reads the reply to the feedback prompt. Anything it does not
// recognise means no feedback.
func parseFeedback(raw string) (assistant.FeedbackInput, bool) {
	lower := strings.ToLower(raw)
	switch {
	case lower == "y" || lower == "yes":
		helpful := true
		return assistant.FeedbackInput{Helpful: &helpful}, true
	case lower == "n" || lower == "no":
		helpful := false
		return assistant.FeedbackInput{Helpful: &helpful}, true
	case strings.HasPrefix(lower, "correct "):
		intent := strings.TrimSpace(lower[len("correct "):])
		return assistant.FeedbackInput{CorrectionIntent: intent}, intent != ""
	case strings.HasPrefix(lower, "fix "):
		answer := strings.TrimSpace(raw[len("fix "):])
		return assistant.FeedbackInput{CorrectedAnswer: answer}, answer != ""
	}
	return assistant.FeedbackInput{}, false
}
