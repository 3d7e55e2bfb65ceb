package notifier

import (
	"fmt"
	"strings"

	"newsdigest/internal/domain"
	"newsdigest/internal/markdown"
)

const telegramMessageMaxLength = 4096

// Batch is one finished run together with the records it stored.
type Batch struct {
	Source  string
	Report  domain.BatchReport
	Records []domain.Record
}

func formatBatchMessages(batch Batch) []string {
	header := fmt.Sprintf("📰 *Digest: %s*\n✅ %d succeeded, ❌ %d failed\n\n",
		markdown.EscapeV2(batch.Source),
		len(batch.Report.Succeeded),
		len(batch.Report.Failed))
	continueHeader := fmt.Sprintf("📰 *Digest: %s \\(continue\\)*\n\n", markdown.EscapeV2(batch.Source))

	var messages []string
	var currentMessage strings.Builder
	currentMessage.WriteString(header)

	write := func(block string) {
		if currentMessage.Len()+len(block) > telegramMessageMaxLength {
			messages = append(messages, currentMessage.String())
			currentMessage.Reset()
			currentMessage.WriteString(continueHeader)
		}

		currentMessage.WriteString(block)
	}

	for _, rec := range batch.Records {
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			title = rec.SourceURL
		}

		write(fmt.Sprintf("📌 *%s*\n%s\n\n",
			markdown.Link(title, rec.SourceURL),
			markdown.EscapeV2(strings.TrimSpace(rec.Summary))))
	}

	if len(batch.Report.Failed) > 0 {
		write("⚠️ *Failures*\n\n")

		for _, f := range batch.Report.Failed {
			title := strings.TrimSpace(f.Item.Title)
			if title == "" {
				title = f.Item.SourceURL
			}

			line := fmt.Sprintf("– %s: %s\n", markdown.EscapeV2(string(f.Kind)), markdown.EscapeV2(title))
			if f.Item.SourceURL != "" {
				line = fmt.Sprintf("– %s: %s\n", markdown.EscapeV2(string(f.Kind)), markdown.Link(title, f.Item.SourceURL))
			}

			write(line)
		}
	}

	messages = append(messages, currentMessage.String())

	return messages
}
