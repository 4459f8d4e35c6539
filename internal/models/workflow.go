package models

// Transition is one permitted edge of the editorial workflow.
type Transition struct {
	From ArticleStatus
	To   ArticleStatus
	Role UserRole
	// OwnOnly restricts the edge to the article's author.
	OwnOnly bool
}

// Transitions lists every explicit status change. Anything not listed is
// rejected.
var Transitions = []Transition{
	{From: StatusDraft, To: StatusReview, Role: RoleReporter, OwnOnly: true},
	{From: StatusReview, To: StatusPublished, Role: RoleEditor},
	{From: StatusPublished, To: StatusSuspended, Role: RoleEditor},
	{From: StatusSuspended, To: StatusDraft, Role: RoleEditor},
	{From: StatusReview, To: StatusDraft, Role: RoleEditor},
}

// FindTransition returns the table entry for from -> to.
func FindTransition(from, to ArticleStatus) (Transition, bool) {
	for _, t := range Transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// CanTransition reports whether session may move article to status to.
func CanTransition(session Session, article Article, to ArticleStatus) bool {
	if !session.Authenticated() {
		return false
	}
	t, ok := FindTransition(article.Status, to)
	if !ok || session.Role != t.Role {
		return false
	}
	return !t.OwnOnly || article.AuthorID == session.IdentityID
}

// NextStatusOnEdit is the status an article takes after its content is
// edited. Editing something under review sends it back to draft.
func NextStatusOnEdit(prev ArticleStatus) ArticleStatus {
	if prev == StatusReview {
		return StatusDraft
	}
	return prev
}

// CanEdit reports whether session may change the article's content. Editors
// may edit anything; reporters only their own drafts and suspended pieces.
func CanEdit(session Session, article Article) bool {
	switch {
	case session.IsEditor():
		return true
	case session.IsReporter():
		return ownsMutable(session, article)
	}
	return false
}

// CanDelete follows the same rule as CanEdit.
func CanDelete(session Session, article Article) bool {
	return CanEdit(session, article)
}

func ownsMutable(session Session, article Article) bool {
	if article.AuthorID != session.IdentityID {
		return false
	}
	return article.Status == StatusDraft || article.Status == StatusSuspended
}

var transitionActions = map[ArticleStatus]map[ArticleStatus]ArticleAction{
	StatusDraft:     {StatusReview: ActionSubmit},
	StatusReview:    {StatusPublished: ActionPublish, StatusDraft: ActionReturn},
	StatusPublished: {StatusSuspended: ActionDeactivate},
	StatusSuspended: {StatusDraft: ActionReturn},
}

// ActionTarget maps a status action back to the status it moves to.
func ActionTarget(from ArticleStatus, action ArticleAction) (ArticleStatus, bool) {
	for to, a := range transitionActions[from] {
		if a == action {
			return to, true
		}
	}
	return "", false
}

// AvailableActions lists what session may do with article, in a stable
// order: edit, delete, then status actions in table order.
func AvailableActions(session Session, article Article) []ArticleAction {
	actions := make([]ArticleAction, 0, 4)
	if CanEdit(session, article) {
		actions = append(actions, ActionEdit)
	}
	if CanDelete(session, article) {
		actions = append(actions, ActionDelete)
	}
	for _, t := range Transitions {
		if t.From != article.Status || !CanTransition(session, article, t.To) {
			continue
		}
		actions = append(actions, transitionActions[t.From][t.To])
	}
	return actions
}
