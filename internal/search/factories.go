package search

import "strconv"

func single(kind Kind, value string) *Search {
	return New([]Pair{{Name: string(kind), Value: value}})
}

// ForFullText returns a search for mails whose subject or body matches text.
func ForFullText(text string) *Search { return single(KindFullText, text) }

// ForMailID returns a search for the mail with the given id.
func ForMailID(id int64) *Search { return single(KindMail, strconv.FormatInt(id, 10)) }

// ForSenderID returns a search for mails sent by a contact.
func ForSenderID(id int64) *Search { return single(KindSender, strconv.FormatInt(id, 10)) }

// ForTagID returns a search for mails carrying a tag.
func ForTagID(id int64) *Search { return single(KindTag, strconv.FormatInt(id, 10)) }

// ForNotTagID returns a search for mails not carrying a tag.
func ForNotTagID(id int64) *Search { return single(KindNotTag, strconv.FormatInt(id, 10)) }

// ForContactID returns a search for mails sent by, to or copied to a contact.
func ForContactID(id int64) *Search { return single(KindContact, strconv.FormatInt(id, 10)) }

// ForRecipientID returns a search for mails sent or copied to a contact.
func ForRecipientID(id int64) *Search { return single(KindRecipient, strconv.FormatInt(id, 10)) }

// ForDays returns a search for mails from the last n days.
func ForDays(n int) *Search { return single(KindDays, strconv.Itoa(n)) }

// ForTeam returns a search for mails to a team's contact in the last n days.
// A contactID of 0 selects every team and yields the plain day search.
func ForTeam(contactID int64, days int) *Search {
	return New([]Pair{
		{Name: string(KindRecipient), Value: strconv.FormatInt(contactID, 10)},
		{Name: string(KindDays), Value: strconv.Itoa(days)},
	})
}
