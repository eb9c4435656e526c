package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"calorie-log/internal/config"
	"calorie-log/internal/model"
	"calorie-log/internal/repository"
	"calorie-log/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageEntryValue
	stageEntryAmount
	stageEntryTime
	stageEntryDescription
	stageEditDescription
	stageEditCalories
	stageFoodType
	stageFoodCalories
	stageFoodServing
	stageFoodName
	stageFoodDescription
)

const (
	cbEntryEditPrefix   = "eedit:"
	cbEntryDeletePrefix = "edel:"
	cbFoodEditPrefix    = "fedit:"
	cbFoodDeletePrefix  = "fdel:"
)

const (
	btnSkip          = "⏭️ Пропустить"
	btnConfirm       = "✅ Подтвердить"
	btnCancel        = "↩️ Отмена"
	btnCancelDialog  = "⏪ Отменить ввод"
	btnByWeight      = "⚖️ По весу"
	btnFixedServing  = "🍱 Фиксированная порция"
	menuLabelAdd     = "➕ Запись"
	menuLabelDay     = "📅 Сегодня"
	menuLabelFoods   = "🥗 Продукты"
	menuLabelHelp    = "ℹ️ Помощь"
)

type conversationState struct {
	stage conversationStage

	entry       service.EntryInput
	editEntryID uint

	food       service.FoodInput
	editFoodID string
}

type confirmationKind int

const (
	confirmDeleteEntry confirmationKind = iota
	confirmDeleteFood
)

type confirmationRequest struct {
	kind    confirmationKind
	entryID uint
	foodID  string
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	foodSvc       *service.FoodService
	logSvc        *service.LogService
	reportSvc     *service.ReportService
	config        *config.Config
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, foodSvc *service.FoodService, logSvc *service.LogService, reportSvc *service.ReportService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		foodSvc:       foodSvc,
		logSvc:        logSvc,
		reportSvc:     reportSvc,
		config:        cfg,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён. Я здесь, чтобы начать заново.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /add, чтобы записать калории, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "add":
		return b.startEntryConversation(ctx, msg)
	case "day":
		return b.handleDay(ctx, msg)
	case "foods":
		return b.handleListFoods(ctx, msg)
	case "newfood":
		return b.startFoodConversation(ctx, msg.Chat.ID, msg.From, "")
	case "report":
		return b.handleReport(ctx, msg)
	case "target":
		return b.handleTarget(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я считаю калории: записывай еду, а я веду дневной итог.</b>\n\nКоманды:\n"+
			"• /add — записать калории или продукт\n"+
			"• /day — дневник за сегодня (или /day 2024-01-15)\n"+
			"• /foods — каталог продуктов\n"+
			"• /newfood — добавить продукт в каталог\n"+
			"• /target &lt;кал&gt; — дневная цель\n"+
			"• /report — сводка за день\n"+
			"• /help — подсказки\n"+
			"• /cancel — отменить текущий ввод",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /add — пошагово записать калории числом или выбрать продукт из каталога\n" +
		"• /day — показать записи за день с кнопками изменить/удалить\n" +
		"• /day 2024-01-15 — дневник за конкретную дату\n" +
		"• /foods — каталог продуктов с кнопками изменить/удалить\n" +
		"• /newfood — добавить продукт (по весу или фиксированная порция)\n" +
		"• /target 2000 — установить дневную цель, /target 0 — убрать\n" +
		"• /report — сводка с итогом и остатком до цели\n" +
		"• /cancel — отменить текущий ввод"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reportSvc.DailySummary(ctx, *user, time.Now().In(b.config.Location))
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сформировать сводку: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleTarget(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		if user.DailyCalorieTarget == nil {
			return b.sendText(msg.Chat.ID, "Дневная цель не задана. Установи её: /target 2000")
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Текущая цель: %s кал в день. Изменить: /target 1800, убрать: /target 0",
			service.FormatCalories(*user.DailyCalorieTarget)))
	}

	value, err := strconv.ParseFloat(args, 64)
	if err != nil || value < 0 {
		return b.sendText(msg.Chat.ID, "Цель должна быть неотрицательным числом калорий, например /target 2000")
	}

	var target *float64
	if value > 0 {
		target = &value
	}
	if err := b.userRepo.SetDailyTarget(ctx, user.ID, target); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не удалось сохранить цель: %s", escape(err.Error())))
	}

	if target == nil {
		return b.sendText(msg.Chat.ID, "🎯 Дневная цель убрана.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🎯 Дневная цель: %s кал.", service.FormatCalories(value)))
}

// handleDay renders the log for one calendar day. A read error is reported
// as an error, never as an empty day.
func (b *Bot) handleDay(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	day := time.Now().In(b.config.Location)
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		parsed, err := time.ParseInLocation("2006-01-02", args, b.config.Location)
		if err != nil {
			return b.sendText(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2024-01-15</code>.")
		}
		day = parsed
	}

	log.Printf("[info] day view %s for user=%d", day.Format("2006-01-02"), user.ID)
	return b.sendDayView(ctx, msg.Chat.ID, user, day)
}

func (b *Bot) sendDayView(ctx context.Context, chatID int64, user *model.User, day time.Time) error {
	rows, err := b.logSvc.EntriesForDay(ctx, user, day)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("⚠️ Не удалось получить записи за %s: %s",
			day.Format("2006-01-02"), escape(err.Error())))
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📅 <b>Дневник за %s</b>\n\n", day.Format("02.01.2006")))

	if len(rows) == 0 {
		builder.WriteString("Записей нет. Добавь первую через /add.\n")
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		builder.WriteString(service.FormatEntryLine(row, b.config.Location))
		builder.WriteByte('\n')
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✏️ #%d · %s", row.ID, shortLabel(service.EntryLabel(row), 20)),
				fmt.Sprintf("%s%d", cbEntryEditPrefix, row.ID)),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("%s%d", cbEntryDeletePrefix, row.ID)),
		})
	}

	builder.WriteString(fmt.Sprintf("\nΣ <b>Итого: %s кал</b>", service.FormatCalories(service.DayTotal(rows))))

	out := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	out.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(out)
	return err
}

// --- add-entry conversation ---

func (b *Bot) startEntryConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	log.Printf("[info] start entry conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageEntryValue})
	return b.sendWithReplyMarkup(msg.Chat.ID,
		"🆕 Записываем калории.\n<b>Шаг 1:</b> введи число калорий или название продукта из каталога.",
		cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageEntryValue:
		return b.handleEntryValue(ctx, msg, state, text)
	case stageEntryAmount:
		return b.handleEntryAmount(msg, state, text)
	case stageEntryTime:
		return b.handleEntryTime(msg, state, text)
	case stageEntryDescription:
		if !isSkipInput(text) {
			state.entry.Description = text
		}
		err := b.finishEntryCreation(ctx, msg.From, state.entry, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	case stageEditDescription:
		if !isSkipInput(text) {
			state.entry.Description = text
		}
		state.stage = stageEditCalories
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔥 Введи новое число калорий (больше нуля).", cancelKeyboard())
	case stageEditCalories:
		value, err := strconv.ParseFloat(text, 64)
		if err != nil || value <= 0 {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Калории должны быть положительным числом.", cancelKeyboard())
		}
		finishErr := b.finishEntryEdit(ctx, msg.From, state.editEntryID, state.entry.Description, value, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return finishErr
	case stageFoodType:
		return b.handleFoodType(msg, state, text)
	case stageFoodCalories:
		if !service.IsValidCalorieValue(text) {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Калории должны быть целым неотрицательным числом.", cancelKeyboard())
		}
		state.food.Calories = text
		if state.food.Type == model.FoodByWeight {
			state.stage = stageFoodServing
			return b.sendWithReplyMarkup(msg.Chat.ID, "⚖️ Размер порции в граммах? (по умолчанию 100)", skipKeyboard())
		}
		state.stage = stageFoodName
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Как назвать продукт?", cancelKeyboard())
	case stageFoodServing:
		if !isSkipInput(text) {
			state.food.ServingGrams = text
		}
		state.stage = stageFoodName
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Как назвать продукт?", cancelKeyboard())
	case stageFoodName:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым.", cancelKeyboard())
		}
		state.food.Name = text
		state.stage = stageFoodDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageFoodDescription:
		if !isSkipInput(text) {
			state.food.Description = text
		}
		err := b.finishFoodSave(ctx, msg.From, state, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /add.")
	}
}

func (b *Bot) handleEntryValue(ctx context.Context, msg *tgbotapi.Message, state *conversationState, text string) error {
	if value, err := strconv.ParseFloat(text, 64); err == nil {
		// Quick set. Zero calories is not a valid override.
		if value == 0 {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Ноль калорий записать нельзя. Введи другое число или название продукта.", cancelKeyboard())
		}
		state.entry.CaloriesOverride = &value
		state.stage = stageEntryTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Во сколько? Формат <code>12:30</code> (или «Пропустить» — сейчас).", skipKeyboard())
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	food, err := b.foodSvc.FindByName(ctx, user, text)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendWithReplyMarkup(msg.Chat.ID,
				"Такого продукта нет в каталоге. Введи число калорий, другое название или добавь продукт через /newfood.",
				cancelKeyboard())
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Не удалось найти продукт: %s", escape(err.Error())), cancelKeyboard())
	}

	switch food.Type {
	case model.FoodByWeight:
		state.entry.FoodID = &food.ID
		state.entry.Description = food.Name
		serving := "100"
		if food.ServingGrams != nil {
			serving = service.FormatCalories(*food.ServingGrams)
		}
		state.stage = stageEntryAmount
		return b.sendWithReplyMarkup(msg.Chat.ID,
			fmt.Sprintf("⚖️ Сколько граммов «%s»? (порция по умолчанию %s г — «Пропустить»)", escape(food.Name), serving),
			skipKeyboard())
	case model.FoodFixedServing:
		// Fixed servings are stored as a plain override, like the quick set.
		if food.CaloriesFixed != nil {
			state.entry.CaloriesOverride = food.CaloriesFixed
		}
		state.entry.Description = food.Name
		state.stage = stageEntryTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Во сколько? Формат <code>12:30</code> (или «Пропустить» — сейчас).", skipKeyboard())
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "У продукта неизвестный тип порции, выбери другой.", cancelKeyboard())
	}
}

func (b *Bot) handleEntryAmount(msg *tgbotapi.Message, state *conversationState, text string) error {
	if isSkipInput(text) {
		// Default serving is filled in at save time from the food itself.
		state.stage = stageEntryTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Во сколько? Формат <code>12:30</code> (или «Пропустить» — сейчас).", skipKeyboard())
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || value <= 0 {
		return b.sendWithReplyMarkup(msg.Chat.ID, "Количество граммов должно быть положительным числом.", skipKeyboard())
	}
	state.entry.Amount = &value
	state.stage = stageEntryTime
	return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Во сколько? Формат <code>12:30</code> (или «Пропустить» — сейчас).", skipKeyboard())
}

func (b *Bot) handleEntryTime(msg *tgbotapi.Message, state *conversationState, text string) error {
	now := time.Now().In(b.config.Location)
	state.entry.Timestamp = now
	if !isSkipInput(text) {
		parsed, err := time.Parse("15:04", text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать время. Используй формат <code>12:30</code> или «Пропустить».", skipKeyboard())
		}
		state.entry.Timestamp = time.Date(now.Year(), now.Month(), now.Day(),
			parsed.Hour(), parsed.Minute(), 0, 0, b.config.Location)
	}
	state.stage = stageEntryDescription
	return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Описание записи (или «Пропустить»).", skipKeyboard())
}

func (b *Bot) finishEntryCreation(ctx context.Context, from *tgbotapi.User, input service.EntryInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	if input.FoodID != nil && input.Amount == nil {
		if food, err := b.foodSvc.Get(ctx, user, *input.FoodID); err == nil && food.ServingGrams != nil {
			input.Amount = food.ServingGrams
		}
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now().In(b.config.Location)
	}

	entry, err := b.logSvc.AddEntry(ctx, user, input)
	if err != nil {
		// The conversation is already cleared; report the attempted values so
		// the user can resubmit.
		return b.sendText(chatID, fmt.Sprintf("⚠️ Не удалось сохранить запись «%s»: %s\nПопробуй ещё раз через /add.",
			escape(input.Description), escape(err.Error())))
	}

	log.Printf("[info] entry created id=%d user=%d day=%s", entry.ID, user.ID, entry.Timestamp.In(b.config.Location).Format("2006-01-02"))

	if err := b.sendTextWithRemove(chatID, "✅ <b>Запись сохранена</b>"); err != nil {
		return err
	}
	return b.sendDayView(ctx, chatID, user, entry.Timestamp)
}

func (b *Bot) finishEntryEdit(ctx context.Context, from *tgbotapi.User, entryID uint, description string, calories float64, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	entry, err := b.logSvc.EditEntry(ctx, user, entryID, description, &calories)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendTextWithRemove(chatID, "Запись не найдена или уже удалена.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("⚠️ Не удалось изменить запись: %s", escape(err.Error())))
	}

	log.Printf("[info] entry updated id=%d user=%d", entry.ID, user.ID)
	if err := b.sendTextWithRemove(chatID, "✅ Запись обновлена."); err != nil {
		return err
	}
	return b.sendDayView(ctx, chatID, user, entry.Timestamp)
}

// --- food catalogue ---

func (b *Bot) handleListFoods(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	foods, err := b.foodSvc.List(ctx, user)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("⚠️ Не удалось получить каталог: %s", escape(err.Error())))
	}
	if len(foods) == 0 {
		return b.sendText(msg.Chat.ID, "Каталог пока пуст. Добавь продукт через /newfood.")
	}

	var builder strings.Builder
	builder.WriteString("🥗 <b>Каталог продуктов</b>\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, food := range foods {
		builder.WriteString(formatFood(food))
		buttons = append(buttons, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✏️ %s", shortLabel(food.Name, 24)),
				cbFoodEditPrefix+food.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", cbFoodDeletePrefix+food.ID),
		})
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, strings.TrimSpace(builder.String()))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	out.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) startFoodConversation(ctx context.Context, chatID int64, from *tgbotapi.User, editFoodID string) error {
	if _, err := b.ensureUser(ctx, from); err != nil {
		return err
	}
	log.Printf("[info] start food conversation user=%d edit=%q", from.ID, editFoodID)
	b.setConversation(from.ID, &conversationState{stage: stageFoodType, editFoodID: editFoodID})
	title := "🆕 Добавляем продукт."
	if editFoodID != "" {
		title = "✏️ Изменяем продукт: все поля вводятся заново."
	}
	return b.sendWithReplyMarkup(chatID, title+"\n<b>Шаг 1:</b> какой тип порции?", foodTypeKeyboard())
}

func (b *Bot) handleFoodType(msg *tgbotapi.Message, state *conversationState, text string) error {
	switch strings.ToLower(text) {
	case strings.ToLower(btnByWeight), "по весу", "by weight":
		state.food.Type = model.FoodByWeight
		state.stage = stageFoodCalories
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔥 Сколько калорий на 100 г?", cancelKeyboard())
	case strings.ToLower(btnFixedServing), "фиксированная порция", "фиксированная", "fixed":
		state.food.Type = model.FoodFixedServing
		state.stage = stageFoodCalories
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔥 Сколько калорий в одной порции?", cancelKeyboard())
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери тип порции кнопкой.", foodTypeKeyboard())
	}
}

func (b *Bot) finishFoodSave(ctx context.Context, from *tgbotapi.User, state *conversationState, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	var food *model.Food
	if state.editFoodID != "" {
		food, err = b.foodSvc.Update(ctx, user, state.editFoodID, state.food)
	} else {
		food, err = b.foodSvc.Create(ctx, user, state.food)
	}
	if err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("⚠️ Не удалось сохранить продукт «%s»: %s\nПопробуй ещё раз через /newfood.",
			escape(state.food.Name), escape(err.Error())))
	}

	log.Printf("[info] food saved id=%s user=%d type=%s", food.ID, user.ID, food.Type)
	return b.sendTextWithRemove(chatID, fmt.Sprintf("✅ <b>Продукт сохранён</b>\n%s", formatFood(*food)))
}

// --- callbacks and confirmations ---

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, cbEntryEditPrefix):
		entryID, err := parseEntryID(data, cbEntryEditPrefix)
		if err != nil {
			return nil
		}
		log.Printf("[info] callback edit entry user=%d entry=%d", cb.From.ID, entryID)
		return b.startEntryEditConversation(ctx, chatID, cb.From, entryID)
	case strings.HasPrefix(data, cbEntryDeletePrefix):
		entryID, err := parseEntryID(data, cbEntryDeletePrefix)
		if err != nil {
			return nil
		}
		log.Printf("[info] callback delete entry user=%d entry=%d", cb.From.ID, entryID)
		return b.askEntryDeleteConfirmation(ctx, chatID, cb.From, entryID)
	case strings.HasPrefix(data, cbFoodEditPrefix):
		foodID := strings.TrimPrefix(data, cbFoodEditPrefix)
		log.Printf("[info] callback edit food user=%d food=%s", cb.From.ID, foodID)
		return b.startFoodConversation(ctx, chatID, cb.From, foodID)
	case strings.HasPrefix(data, cbFoodDeletePrefix):
		foodID := strings.TrimPrefix(data, cbFoodDeletePrefix)
		log.Printf("[info] callback delete food user=%d food=%s", cb.From.ID, foodID)
		return b.askFoodDeleteConfirmation(ctx, chatID, cb.From, foodID)
	default:
		return nil
	}
}

func (b *Bot) startEntryEditConversation(ctx context.Context, chatID int64, from *tgbotapi.User, entryID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	entry, err := b.logSvc.GetEntry(ctx, user, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Запись не найдена.")
		}
		return b.sendText(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}

	state := &conversationState{stage: stageEditDescription, editEntryID: entry.ID}
	state.entry.Description = entry.Description
	b.setConversation(from.ID, state)

	current := entry.Description
	if current == "" {
		current = service.ManualEntryLabel
	}
	return b.sendWithReplyMarkup(chatID,
		fmt.Sprintf("✏️ Изменяем запись #%d («%s»).\nВведи новое описание (или «Пропустить» — оставить как есть).",
			entry.ID, escape(current)),
		skipKeyboard())
}

func (b *Bot) askEntryDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, entryID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	entry, err := b.logSvc.GetEntry(ctx, user, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Запись не найдена.")
		}
		return err
	}

	label := entry.Description
	if label == "" {
		label = service.ManualEntryLabel
	}
	text := fmt.Sprintf("Удалить запись «%s» (#%d)? Это навсегда.", escape(label), entry.ID)
	b.setConfirmation(from.ID, confirmationRequest{kind: confirmDeleteEntry, entryID: entry.ID})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) askFoodDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, foodID string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	food, err := b.foodSvc.Get(ctx, user, foodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(chatID, "Продукт не найден.")
		}
		return err
	}

	text := fmt.Sprintf("Удалить продукт «%s»? Записи, сделанные по нему, останутся, но потеряют расчёт по весу.",
		escape(food.Name))
	b.setConfirmation(from.ID, confirmationRequest{kind: confirmDeleteFood, foodID: food.ID})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.kind == confirmDeleteFood {
			return b.deleteFood(ctx, msg.Chat.ID, msg.From, req.foodID)
		}
		return b.deleteEntryAndRefresh(ctx, msg.Chat.ID, msg.From, req.entryID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Подтверди или отмени удаление.", confirmKeyboard())
	}
}

func (b *Bot) deleteEntryAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, entryID uint) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	entry, err := b.logSvc.DeleteEntry(ctx, user, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendTextWithRemove(chatID, "Запись не найдена или уже удалена.")
		}
		return b.sendTextWithRemove(chatID, fmt.Sprintf("⚠️ Не удалось удалить запись: %s", escape(err.Error())))
	}

	log.Printf("[info] entry deleted id=%d user=%d", entry.ID, user.ID)
	if err := b.sendTextWithRemove(chatID, "🗑 Запись удалена."); err != nil {
		return err
	}
	return b.sendDayView(ctx, chatID, user, entry.Timestamp)
}

func (b *Bot) deleteFood(ctx context.Context, chatID int64, from *tgbotapi.User, foodID string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	if err := b.foodSvc.Delete(ctx, user, foodID); err != nil {
		return b.sendTextWithRemove(chatID, fmt.Sprintf("⚠️ Не удалось удалить продукт: %s", escape(err.Error())))
	}

	log.Printf("[info] food deleted id=%s user=%d", foodID, user.ID)
	return b.sendTextWithRemove(chatID, "🗑 Продукт удалён из каталога.")
}

// SendDailyReports sends a summary to every known user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(b.config.Location)
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reportSvc.DailySummary(ctx, user, now)
		if err != nil {
			log.Printf("build summary for user %d: %v", user.TelegramID, err)
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			log.Printf("send summary to %d: %v", user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelAdd):
		return true, b.startEntryConversation(ctx, msg)
	case strings.ToLower(menuLabelDay):
		return true, b.handleDay(ctx, msg)
	case strings.ToLower(menuLabelFoods):
		return true, b.handleListFoods(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

// --- plumbing ---

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func parseEntryID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func formatFood(food model.Food) string {
	var sb strings.Builder
	switch food.Type {
	case model.FoodByWeight:
		p100 := "?"
		if food.CaloriesP100 != nil {
			p100 = service.FormatCalories(*food.CaloriesP100)
		}
		serving := "100"
		if food.ServingGrams != nil {
			serving = service.FormatCalories(*food.ServingGrams)
		}
		sb.WriteString(fmt.Sprintf("⚖️ <b>%s</b> — %s кал/100 г · порция %s г\n", escape(food.Name), p100, serving))
	case model.FoodFixedServing:
		fixed := "?"
		if food.CaloriesFixed != nil {
			fixed = service.FormatCalories(*food.CaloriesFixed)
		}
		sb.WriteString(fmt.Sprintf("🍱 <b>%s</b> — %s кал за порцию\n", escape(food.Name), fixed))
	default:
		sb.WriteString(fmt.Sprintf("🏷 <b>%s</b>\n", escape(food.Name)))
	}
	if food.Description != "" {
		sb.WriteString(fmt.Sprintf("   📝 %s\n", escape(food.Description)))
	}
	return sb.String()
}

func shortLabel(label string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(label, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelAdd),
			tgbotapi.NewKeyboardButton(menuLabelDay),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelFoods),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func foodTypeKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnByWeight),
			tgbotapi.NewKeyboardButton(btnFixedServing),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод" || value == "отмена"
}

func escape(s string) string {
	return html.EscapeString(s)
}
