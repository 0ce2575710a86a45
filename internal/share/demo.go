package share

import (
	"fmt"
	"time"

	"sharing/pkg/types"
)

// Demo session constants
const (
	DemoCollection      = "studentDemoData"
	DemoCurrentUserID   = "1@demo"
	DemoCurrentUserName = "Ashley A."
	DemoInteractiveName = "Demo Interactive"
	DemoIframeURL       = "https://sagemodeler.concord.org/branch/master/?launchFromLara=eyJyZWNvcmRpZCI6ODMwMTYsImFjY2Vzc0tleXMiOnsicmVhZE9ubHkiOiI5YTQzMjdhYmE0NGZlOTJlYzhiMDkxNWM0MjA1OWYwZGY1MThmMTdmIn19"

	TestInteractiveName = "Test Interactive"
	UnknownUserName     = "Unknown User"

	demoFirstStudent = 2
	demoLastStudent  = 26
)

func demoUserID(i int) string {
	return fmt.Sprintf("%d@demo", i)
}

// DemoUserMap names the demo current user and students "Student A" through "Student Y"
func DemoUserMap() types.UserMap {
	m := types.UserMap{DemoCurrentUserID: DemoCurrentUserName}
	for i := demoFirstStudent; i <= demoLastStudent; i++ {
		m[demoUserID(i)] = fmt.Sprintf("Student %c", rune(63+i))
	}
	return m
}

// DemoDocuments builds the seeded roster, with comment times counted back from now
// Student A has unshared but keeps its comment history, Student B is shared and has
// comments from several classmates, and Student C is shared without receiving any.
// The current user starts unshared, with no comments sent or read and with two
// unread comments, so every seeding resets whatever a previous demo left behind.
func DemoDocuments(now time.Time) []*types.SharedDocument {
	at := func(minutesAgo int) int64 {
		return now.Add(-time.Duration(minutesAgo) * time.Minute).UnixMilli()
	}
	url := DemoIframeURL

	docs := make([]*types.SharedDocument, 0, demoLastStudent-demoFirstStudent+2)
	docs = append(docs, types.NewSharedDocument(DemoCurrentUserID, nil))
	for i := demoFirstStudent; i <= demoLastStudent; i++ {
		u := url
		docs = append(docs, types.NewSharedDocument(demoUserID(i), &u))
	}
	studentA, studentB, studentC, studentD := docs[1], docs[2], docs[3], docs[4]

	studentA.IframeURL = nil
	studentA.Comments = []types.Comment{
		{Recipient: studentB.UserID, Message: "I like how you set up the model.", Time: at(50)},
		{Recipient: DemoCurrentUserID, Message: "Can you explain your second graph?", Time: at(40)},
	}
	studentC.Comments = []types.Comment{
		{Recipient: studentB.UserID, Message: "Nice work!", Time: at(45)},
		{Recipient: DemoCurrentUserID, Message: "Your model is really clear.", Time: at(20)},
	}
	studentD.Comments = []types.Comment{
		{Recipient: studentB.UserID, Message: "What happens if you double the input?", Time: at(10)},
	}
	studentB.LastCommentsSeen = map[string]int64{studentC.UserID: at(30)}
	return docs
}
