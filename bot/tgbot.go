package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"Dreamy/core"
	"Dreamy/gallery"
	"Dreamy/lib/sl"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const helpText = `Send me a prompt and I will draw it.

/imagine <prompt> - generate images (plain text works in private chats)
/size <256x256|512x512|1024x1024> - set image size
/count <1-5> - set number of images
/images - show all images of this chat
/clear - clear images
/help - show this help`

// sender is the part of the Telegram api used to reply
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TgBot struct {
	api         *tgbotapi.BotAPI
	sender      sender
	service     core.ImageService
	botUsername string
	log         *slog.Logger
}

func NewTgBot(conf *core.Config, service core.ImageService, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.Telegram.ApiKey)
	if err != nil {
		return nil, fmt.Errorf("creating bot api: %w", err)
	}

	return &TgBot{
		api:         api,
		sender:      api,
		service:     service,
		botUsername: conf.Telegram.Username,
		log:         log.With(sl.Module("telegram")),
	}, nil
}

// Start receives updates until Stop is called
func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil {
			continue
		}
		incoming := update.Message
		from := ""
		if incoming.From != nil {
			from = incoming.From.UserName
		}
		t.log.With(
			slog.Int64("chat", incoming.Chat.ID),
			slog.String("from", from),
			slog.String("text", sl.Truncate(incoming.Text, 50)),
		).Debug("incoming message")

		go t.handle(incoming.Chat.ID, incoming.Chat.IsPrivate() || t.isReplyToBot(incoming), incoming.Text)
	}
	return nil
}

func (t *TgBot) Stop() {
	t.api.StopReceivingUpdates()
}

func sessionId(chatId int64) string {
	return "tg:" + strconv.FormatInt(chatId, 10)
}

// handle answers one message. In group chats only commands and mentions are
// taken as requests.
func (t *TgBot) handle(chatId int64, direct bool, text string) {
	command, args, isCommand := parseCommand(text, t.botUsername)
	id := sessionId(chatId)

	if !isCommand {
		if strings.HasPrefix(text, "/") || (!direct && !t.isMentioned(text)) {
			return
		}
		t.generate(chatId, strings.TrimSpace(strings.ReplaceAll(text, "@"+t.botUsername, "")))
		return
	}

	switch command {
	case "start", "help":
		t.plainResponse(chatId, helpText)
	case "imagine":
		t.generate(chatId, args)
	case "size":
		size, err := core.ParseSize(strings.TrimSpace(args))
		if err != nil {
			t.plainResponse(chatId, core.UserMessage(err))
			return
		}
		settings := t.service.Settings(id)
		settings.Size = size
		t.saveSettings(chatId, settings)
	case "count":
		count, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			count = 0
		}
		settings := t.service.Settings(id)
		settings.Count = count
		t.saveSettings(chatId, settings)
	case "images":
		images, err := t.service.Images(id)
		if err != nil {
			t.log.Error("getting images", sl.Session(id), sl.Err(err))
			t.plainResponse(chatId, core.UserMessage(err))
			return
		}
		if len(images) == 0 {
			t.plainResponse(chatId, "No images yet.")
			return
		}
		t.sendImages(chatId, images)
	case "clear":
		if err := t.service.Clear(id); err != nil {
			t.log.Error("clearing images", sl.Session(id), sl.Err(err))
			t.plainResponse(chatId, core.UserMessage(err))
			return
		}
		t.plainResponse(chatId, "Images cleared.")
	default:
		t.plainResponse(chatId, "Unknown command. "+helpText)
	}
}

func (t *TgBot) saveSettings(chatId int64, settings core.Settings) {
	if err := t.service.SaveSettings(sessionId(chatId), settings); err != nil {
		t.plainResponse(chatId, core.UserMessage(err))
		return
	}
	t.plainResponse(chatId, fmt.Sprintf("Size %s, %d image(s) per request.", settings.Size, settings.Count))
}

func (t *TgBot) generate(chatId int64, prompt string) {
	id := sessionId(chatId)
	settings := t.service.Settings(id)
	req := core.GenerationRequest{Prompt: prompt, Size: settings.Size, Count: settings.Count}

	ctx, cancel := context.WithCancel(context.Background())
	go t.sendChatAction(ctx, chatId, tgbotapi.ChatUploadPhoto)

	added, err := t.service.Submit(ctx, id, req)
	cancel()
	if err != nil {
		t.plainResponse(chatId, core.UserMessage(err))
		return
	}
	t.sendImages(chatId, added)
}

// sendImages sends every image as a photo followed by the original file
func (t *TgBot) sendImages(chatId int64, images []core.Artifact) {
	for _, img := range gallery.Render(images) {
		data := images[img.Index-1]
		photo := tgbotapi.NewPhotoUpload(chatId, tgbotapi.FileBytes{Name: img.FileName, Bytes: data})
		if _, err := t.sender.Send(photo); err != nil {
			t.log.Error("sending photo", slog.Int64("chat", chatId), sl.Err(err))
		}
		doc := tgbotapi.NewDocumentUpload(chatId, tgbotapi.FileBytes{Name: img.FileName, Bytes: data})
		if _, err := t.sender.Send(doc); err != nil {
			t.log.Error("sending document", slog.Int64("chat", chatId), sl.Err(err))
		}
	}
}

// sendChatAction repeats the action every 5 seconds until ctx is done
func (t *TgBot) sendChatAction(ctx context.Context, chatId int64, action string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		if _, err := t.sender.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
			t.log.Debug("sending chat action", sl.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.sender.Send(msg); err != nil {
		t.log.Error("sending message", slog.Int64("chat", chatId), sl.Err(err))
	}
}

// parseCommand splits "/cmd@bot args" into its parts. Commands addressed to
// another bot are not ours.
func parseCommand(text, botUsername string) (command, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	command, target, addressed := strings.Cut(head, "@")
	if addressed && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	if command == "" {
		return "", "", false
	}
	return strings.ToLower(command), strings.TrimSpace(rest), true
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.botUsername != "" {
		return strings.Contains(text, "@"+t.botUsername)
	}
	return false
}

// detect if message is a reply to a message from the bot
func (t *TgBot) isReplyToBot(message *tgbotapi.Message) bool {
	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		return message.ReplyToMessage.From.UserName == t.botUsername
	}
	return false
}
