// Package host describes the collaborator that owns the live design
// document and delivers lifecycle notifications.
//
// The audit pipeline registers a [Listener] with a [Host] at startup and
// cancels the registration explicitly at shutdown.
package host

// ElementID identifies an element within one document session.
type ElementID int64

// InvalidElementID marks an absent reference, such as an element with no
// containing level.
const InvalidElementID ElementID = -1

// Element is the audit-relevant view of a document element.
type Element struct {
	ID ElementID
	// Category is the category display name; empty when the element has none.
	Category string
	Name     string
	// LevelID references the containing level element.
	LevelID ElementID
	// IsType marks type (definition) elements, which snapshots skip.
	IsType bool
}

// Document is the live model owned by the host.
type Document interface {
	// Title is the project name: the document file name without extension.
	Title() string
	// Username is the operator name the host reports for edits.
	Username() string
	// Elements returns every element currently in the document.
	Elements() []Element
	// Element looks up a single element.
	Element(id ElementID) (Element, bool)
}

// Listener receives host lifecycle notifications. Implementations must
// return quickly from DocumentChanged; it runs on the host's edit path.
type Listener interface {
	DocumentOpened(doc Document)
	DocumentChanged(doc Document, deleted []ElementID)
	DocumentSynchronized(doc Document)
	DocumentSaved(doc Document)
}

// Host delivers notifications to subscribed listeners.
type Host interface {
	// Subscribe registers l and returns a function that cancels the
	// registration. Cancel is idempotent.
	Subscribe(l Listener) (cancel func())
}
