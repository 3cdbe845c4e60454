package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatrelay/pkg/llm"
)

var _ = Describe("Event", func() {
	It("encodes each variant with only its own fields", func() {
		for ev, want := range map[*llm.Event]string{
			ptr(llm.Chunk("Hi")):   `{"type":"chunk","content":"Hi"}`,
			ptr(llm.Done()):        `{"type":"done"}`,
			ptr(llm.Error("boom")): `{"type":"error","message":"boom"}`,
			ptr(llm.ModelInfo("GLM-4-Flash", "fast", "128K")): `{"type":"model_info","model":"GLM-4-Flash","strength":"fast","context":"128K"}`,
		} {
			data, err := json.Marshal(ev)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(want))
		}
	})

	It("treats only done and error as terminal", func() {
		Expect(llm.Done().IsTerminal()).To(BeTrue())
		Expect(llm.Error("x").IsTerminal()).To(BeTrue())
		Expect(llm.Chunk("x").IsTerminal()).To(BeFalse())
		Expect(llm.ModelInfo("m", "s", "c").IsTerminal()).To(BeFalse())
	})
})

var _ = Describe("Prompt", func() {
	It("requires text or files", func() {
		Expect((&llm.Prompt{Message: "  \n"}).Validate()).To(MatchError(llm.ErrEmptyPrompt))
		Expect((&llm.Prompt{Message: "hi"}).Validate()).To(Succeed())
		Expect((&llm.Prompt{Files: []llm.FileRef{{Name: "a.txt", Type: "text/plain"}}}).Validate()).To(Succeed())
	})

	It("detects document attachments", func() {
		images := &llm.Prompt{Files: []llm.FileRef{
			{Name: "a.png", Type: "image/png"},
			{Name: "b", Type: llm.FileKindImage},
		}}
		Expect(images.HasDocuments()).To(BeFalse())

		mixed := &llm.Prompt{Files: []llm.FileRef{
			{Name: "a.png", Type: "image/png"},
			{Name: "c.pdf", Type: "application/pdf"},
		}}
		Expect(mixed.HasDocuments()).To(BeTrue())
	})
})

var _ = Describe("Message", func() {
	It("concatenates text blocks", func() {
		m := llm.Message{Role: "assistant", Content: []llm.ContentBlock{
			{Type: "text", Text: "Hello"},
			{Type: "image", ImageURL: "data:image/png;base64,AA=="},
			{Type: "text", Text: " there"},
		}}
		Expect(m.GetText()).To(Equal("Hello there"))
		Expect(m.IsPlainText()).To(BeFalse())

		plain := llm.NewTextMessage("user", "hi")
		Expect(plain.IsPlainText()).To(BeTrue())
	})
})

var _ = Describe("NonJSONPolicy", func() {
	It("defaults to drop", func() {
		var p llm.NonJSONPolicy
		Expect(p).To(Equal(llm.NonJSONDrop))
		Expect(p.String()).To(Equal("drop"))
		Expect(llm.NonJSONPassthrough.String()).To(Equal("passthrough"))
	})
})

func ptr(ev llm.Event) *llm.Event {
	return &ev
}
