// Package consent решает, какие cookies разрешены предпочтением пользователя.
// Предпочтение — строка из cookie баннера: "true" (приняты все), "false" (отказ)
// или "selected:<категории через запятую>". Отсутствующее значение равносильно отказу.
package consent

import "strings"

// Категории, известные баннеру согласия.
const (
	CategoryFunctional = "functional"
	CategorySession    = "session"
)

// CookieName — имя cookie с предпочтением. Менеджер сессий значение не меняет,
// только читает.
const CookieName = "cookies_accepted"

// Сроки жизни cookie предпочтения в секундах: согласие хранится год,
// отказ переспрашивается через месяц.
const (
	AcceptMaxAge = 365 * 24 * 60 * 60
	RejectMaxAge = 30 * 24 * 60 * 60
)

const (
	accepted       = "true"
	rejected       = "false"
	selectedPrefix = "selected:"
)

// Accept возвращает значение предпочтения «приняты все cookies».
func Accept() string { return accepted }

// Reject возвращает значение предпочтения «отказ».
func Reject() string { return rejected }

// Selected собирает значение выборочного согласия. Пустые категории
// отбрасываются; пустой набор равносилен отказу.
func Selected(categories []string) string {
	var kept []string
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return rejected
	}
	return selectedPrefix + strings.Join(kept, ",")
}

// Allowed сообщает, разрешена ли категория данным предпочтением.
func Allowed(pref, category string) bool {
	if pref == accepted {
		return true
	}
	if !strings.HasPrefix(pref, selectedPrefix) {
		return false
	}
	for _, c := range strings.Split(strings.TrimPrefix(pref, selectedPrefix), ",") {
		if c == category {
			return true
		}
	}
	return false
}

// MayIssueSessionCookie решает, можно ли выдавать cookies сессии: нужно полное
// согласие либо категория "session" в выборочном. Проверяется до создания
// сессии; при отказе создание прерывается и хранилище не трогается.
func MayIssueSessionCookie(pref string) bool {
	return Allowed(pref, CategorySession)
}

// Given сообщает, выражено ли какое-либо согласие (полное или выборочное).
func Given(pref string) bool {
	return pref == accepted || strings.HasPrefix(pref, selectedPrefix)
}

// All сообщает, приняты ли все категории.
func All(pref string) bool { return pref == accepted }
