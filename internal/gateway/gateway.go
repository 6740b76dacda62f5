package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/helper"
	"legal-rag/internal/llmservice"
	"legal-rag/internal/models"
	"legal-rag/internal/telegram"
)

// Stage is the position of one message in its processing.
type Stage string

const (
	StageReceived   Stage = "received"
	StageRetrieving Stage = "retrieving"
	StageGenerating Stage = "generating"
	StageReplying   Stage = "replying"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Pipeline answers questions in two steps; *rag.RAG implements it.
type Pipeline interface {
	Retrieve(ctx context.Context, query string) ([]models.ScoredPassage, error)
	Generate(ctx context.Context, query string, passages []models.ScoredPassage, opts ...llmservice.Option) (string, error)
}

// DebugInfo is echoed by the /debug command. Secrets must already be masked.
type DebugInfo struct {
	MaskedToken     string
	PDFBucket       string
	EmbeddingBucket string
	Region          string
	IndexDir        string
	VectorStore     string
}

// Gateway turns Telegram updates into answers.
type Gateway struct {
	rag     Pipeline
	bot     telegram.Sender
	timeout time.Duration
	debug   DebugInfo
	updates *updateSet
	now     func() time.Time
}

func New(rag Pipeline, bot telegram.Sender, timeout time.Duration, debug DebugInfo) *Gateway {
	return &Gateway{
		rag:     rag,
		bot:     bot,
		timeout: timeout,
		debug:   debug,
		updates: newUpdateSet(),
		now:     time.Now,
	}
}

// Outcome reports what happened to one update. Replied is set once the
// final reply, answer or error message, reached the chat.
type Outcome struct {
	RequestID string
	Stage     Stage
	Duplicate bool
	Replied   bool
	Err       error
}

// HandleUpdate processes one update to completion. Every accepted message
// gets exactly one final reply, an error message when any stage fails.
func (g *Gateway) HandleUpdate(ctx context.Context, update telegram.Update) Outcome {
	requestID, err := helper.GenerateUUID()
	if err != nil {
		requestID = fmt.Sprintf("update-%d", update.UpdateID)
	}
	logger := log.With().Str("request_id", requestID).Int64("update_id", update.UpdateID).Logger()
	out := Outcome{RequestID: requestID, Stage: StageReceived}

	if !g.updates.firstTime(update.UpdateID) {
		logger.Info().Msg("Update already processed, ignoring")
		out.Duplicate = true
		out.Stage = StageDone
		return out
	}

	msg := update.IncomingMessage()
	if msg == nil {
		logger.Info().Msg("Update without message, ignoring")
		out.Stage = StageDone
		return out
	}
	chatID := msg.Chat.ID
	logger = logger.With().Int64("chat_id", chatID).Logger()
	ctx = logger.WithContext(ctx)

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "":
		out.Err = g.reply(ctx, chatID, models.MsgTextOnly)
	case strings.HasPrefix(text, "/"):
		out.Err = g.command(ctx, chatID, text)
	default:
		return g.answer(ctx, chatID, text, out)
	}
	if out.Err != nil {
		out.Stage = StageFailed
	} else {
		out.Stage = StageDone
		out.Replied = true
	}
	return out
}

func (g *Gateway) command(ctx context.Context, chatID int64, text string) error {
	cmd := strings.ToLower(strings.Fields(text)[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	zerolog.Ctx(ctx).Info().Str("command", cmd).Msg("Command received")

	switch cmd {
	case "/start":
		return g.reply(ctx, chatID, models.MsgWelcome)
	case "/ajuda", "/help":
		return g.reply(ctx, chatID, models.MsgHelp)
	case "/debug":
		return g.reply(ctx, chatID, g.debugMessage(ctx))
	default:
		return g.reply(ctx, chatID, models.MsgUnknownCommand)
	}
}

func (g *Gateway) debugMessage(ctx context.Context) string {
	var status string
	me, err := g.bot.GetMe(ctx)
	if err != nil {
		status = "❌ Erro: " + err.Error()
	} else {
		status = fmt.Sprintf("✅ Conectado (%s @%s)", me.FirstName, me.Username)
	}
	orUnset := func(s string) string {
		if s == "" {
			return "Não definido"
		}
		return s
	}
	return "🔧 Informações de Debug\n\n" +
		"Status do Bot: " + status + "\n\n" +
		"Token: " + orUnset(g.debug.MaskedToken) + "\n" +
		"API URL: (omitida por segurança)\n\n" +
		"Buckets S3:\n" +
		"- PDF: " + orUnset(g.debug.PDFBucket) + "\n" +
		"- Embeddings: " + orUnset(g.debug.EmbeddingBucket) + "\n\n" +
		"Índice:\n" +
		"- VECTOR_STORE: " + orUnset(g.debug.VectorStore) + "\n" +
		"- CHROMA_DB_DIR: " + orUnset(g.debug.IndexDir) + "\n" +
		"- AWS_DEFAULT_REGION: " + orUnset(g.debug.Region) + "\n"
}

// answer walks received → retrieving → generating → replying → done, or
// stops in failed with an error reply.
func (g *Gateway) answer(ctx context.Context, chatID int64, question string, out Outcome) Outcome {
	logger := zerolog.Ctx(ctx)
	start := g.now()
	advance := func(s Stage) {
		out.Stage = s
		logger.Debug().Str("stage", string(s)).Msg("Stage")
	}

	if err := g.reply(ctx, chatID, models.MsgProcessing); err != nil {
		logger.Warn().Err(err).Msg("Failed to send processing notice")
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	fail := func(err error) Outcome {
		advance(StageFailed)
		out.Err = err
		logger.Error().Err(err).Dur("elapsed", g.now().Sub(start)).Msg("Question failed")
		if sendErr := g.reply(ctx, chatID, UserMessage(runCtx, err)); sendErr != nil {
			logger.Error().Err(sendErr).Msg("Failed to send error reply")
			return out
		}
		out.Replied = true
		return out
	}

	advance(StageRetrieving)
	passages, err := g.rag.Retrieve(runCtx, question)
	if err != nil {
		return fail(err)
	}

	advance(StageGenerating)
	text, err := g.rag.Generate(runCtx, question, passages)
	if err != nil {
		return fail(err)
	}

	advance(StageReplying)
	answer := &models.Answer{Query: question, Text: text, Passages: passages, Duration: g.now().Sub(start)}
	if err := g.reply(ctx, chatID, FormatReply(answer)); err != nil {
		advance(StageFailed)
		out.Err = err
		logger.Error().Err(err).Msg("Failed to send answer")
		return out
	}

	advance(StageDone)
	out.Replied = true
	logger.Info().Dur("duration", answer.Duration).Str("source", answer.Source()).Msg("Question answered")
	return out
}

func (g *Gateway) reply(ctx context.Context, chatID int64, text string) error {
	return g.bot.SendMessage(ctx, chatID, text)
}

// FormatReply renders an answer with its source and processing time.
func FormatReply(a *models.Answer) string {
	var b strings.Builder
	b.WriteString(a.Text)
	if src := a.Source(); src != "" {
		b.WriteString("\n\nFonte: ")
		b.WriteString(src)
	}
	fmt.Fprintf(&b, "\n\n⏱️ Tempo de processamento: %.2f segundos", a.Duration.Seconds())
	return b.String()
}

// UserMessage picks the reply shown for a failed question. ctx is the
// per-question context, whose expiry means the question timed out.
func UserMessage(ctx context.Context, err error) string {
	var (
		retrievalErr  *models.RetrievalError
		generationErr *models.GenerationServiceError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.MsgTimeout
	case errors.Is(err, models.ErrEmptyQuery):
		return models.MsgEmptyQuestion
	case errors.Is(err, models.ErrNoRelevantPassages):
		return models.MsgNothingRelevant
	case errors.As(err, &retrievalErr) &&
		(errors.Is(err, models.ErrIndexEmpty) || errors.Is(err, models.ErrIndexUnavailable)):
		return models.MsgIndexNotReady
	case errors.As(err, &generationErr):
		return models.MsgGenerationBusy
	default:
		return models.MsgInternalError
	}
}
