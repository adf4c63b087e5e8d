package enrichment

// SystemPrompt 指示视觉模型为截图写出无损的文本描述.
const SystemPrompt = "# Task\n" +
	"You will be given a screenshot of the user's screen.\n" +
	"Your job is to write a text description of the screenshot that preserves all of the information in the screenshot.\n" +
	"The context is that this is a call within an AI-powered assistant that watches the user's screen.\n" +
	"A screenshot is taken every 5 seconds.\n" +
	"However, if the tool captures too many screenshots to feed to a multi-modal model, it will use the text description of some of the screenshots.\n" +
	"You are writing this text description for the tool."

const describeInstruction = "Write a text description of this screenshot."
