package classifier

import (
	"regexp"
	"strings"
)

// keywordRule is a deterministic classification pattern. Higher priority
// wins; within equal priority, declaration order wins.
type keywordRule struct {
	category   Category
	priority   int
	confidence float64
	pattern    *regexp.Regexp
}

// Rules are evaluated against lowered, whitespace-collapsed text, so the
// patterns themselves are all lower-case. RE2's \b is ASCII-only and never
// fires next to Cyrillic letters; explicit (^| ) anchors stand in for it.
var keywordRules = []keywordRule{
	// Requests (priority 3): questions and action demands.
	{CategoryRequest, 3, 0.85, regexp.MustCompile(`\?\s*$`)},
	{CategoryRequest, 3, 0.8, regexp.MustCompile(`(^| )(когда|почему|сколько|какой|какая|какие|где|куда|можно ли)`)},
	{CategoryRequest, 3, 0.8, regexp.MustCompile(`(^| )(сч[её]т|акт|накладн|отч[её]т|справк|документ|деклараци|налог|зарплат|аванс|оплат|платеж|плат[её]жк)`)},
	{CategoryRequest, 3, 0.8, regexp.MustCompile(`(^| )(пришлите|отправьте|сделайте|подготовьте|выставите|выставьте|проверьте|посчитайте|помогите|подскажите)`)},
	{CategoryRequest, 3, 0.75, regexp.MustCompile(`(^| )(срочно|нужно|надо|необходимо|требуется|прошу)`)},
	{CategoryRequest, 3, 0.75, regexp.MustCompile(`(не работает|не получается|ошибк|проблем|не приш[её]л|не пришла|не вижу)`)},

	// Spam (priority 2): promotions and link bait.
	{CategorySpam, 2, 0.9, regexp.MustCompile(`(^| )(заработок|казино|ставки|криптовалют|инвестиции под|пассивный доход)`)},
	{CategorySpam, 2, 0.85, regexp.MustCompile(`(^| )(подпишись|подписывайтесь|переходи по ссылке|жми на ссылку|акция только сегодня)`)},
	{CategorySpam, 2, 0.7, regexp.MustCompile(`https?://\S+ (скидк|бонус|промокод)`)},

	// Gratitude (priority 2): closing pleasantries.
	{CategoryGratitude, 2, 0.9, regexp.MustCompile(`(^| )(спасибо|благодарю|благодарим|мерси)`)},
	{CategoryGratitude, 2, 0.8, regexp.MustCompile(`(^| )(отлично|супер|здорово|класс)[!. ]*$`)},
	{CategoryGratitude, 2, 0.8, regexp.MustCompile(`👍|🙏`)},

	// Clarifications (priority 1): short acknowledgements.
	{CategoryClarification, 1, 0.7, regexp.MustCompile(`^(ок|окей|хорошо|понятно|ясно|принято|да|нет|угу|ага)[!. ]*$`)},
	{CategoryClarification, 1, 0.6, regexp.MustCompile(`(^| )(понял|поняла|посмотрю|уточню|проверю)`)},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeText lowers the text and collapses runs of whitespace. The same
// normalization feeds both pattern matching and the cache key.
func normalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(text), " "))
}

// classifyKeyword runs the deterministic pattern table over the text.
func classifyKeyword(text string) *Result {
	normalized := normalizeText(text)

	var best *keywordRule
	for i := range keywordRules {
		rule := &keywordRules[i]
		if best != nil && rule.priority <= best.priority {
			continue
		}
		if rule.pattern.MatchString(normalized) {
			best = rule
		}
	}

	if best == nil {
		return &Result{
			Category:   CategoryClarification,
			Confidence: 0.3,
			Model:      ModelKeyword,
			Reasoning:  "no patterns matched",
		}
	}
	return &Result{
		Category:   best.category,
		Confidence: best.confidence,
		Model:      ModelKeyword,
		Reasoning:  "matched pattern " + best.pattern.String(),
	}
}
