package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	llm "github.com/lizzyg/llmbridge"
)

var chatCmd = &cobra.Command{
	Use:   "chat <model-key> <prompt>",
	Short: "Send one prompt to a configured model",
	Args:  cobra.ExactArgs(2),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().String("system", "", "System prompt")
	chatCmd.Flags().Bool("stream", false, "Stream the reply as it is generated")
	chatCmd.Flags().Int("thinking-budget", -1, "Reasoning token budget (0 disables, negative is automatic)")
	chatCmd.Flags().Bool("show-reasoning", false, "Print reasoning before the reply")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	router, err := newRouter(cmd)
	if err != nil {
		return err
	}
	system, _ := cmd.Flags().GetString("system")
	stream, _ := cmd.Flags().GetBool("stream")
	showReasoning, _ := cmd.Flags().GetBool("show-reasoning")

	var params llm.TextGenerationParams
	if cmd.Flags().Changed("thinking-budget") {
		budget, _ := cmd.Flags().GetInt("thinking-budget")
		params.ThinkingBudget = &budget
	}

	var msgs []llm.UIMessage
	if system != "" {
		msgs = append(msgs, llm.TextMessage(llm.RoleSystem, system))
	}
	msgs = append(msgs, llm.TextMessage(llm.RoleUser, args[1]))

	out := cmd.OutOrStdout()
	if !stream {
		res, err := router.GenerateText(cmd.Context(), args[0], msgs, params)
		if err != nil {
			return err
		}
		if len(res.Choices) == 0 || res.Choices[0].Message == nil {
			return fmt.Errorf("empty reply")
		}
		printMessage(out, *res.Choices[0].Message, showReasoning)
		printUsage(cmd.ErrOrStderr(), res.Usage)
		return nil
	}

	s, err := router.StreamText(cmd.Context(), args[0], msgs, params)
	if err != nil {
		return err
	}
	defer s.Close()
	for s.Next() {
		for _, c := range s.Chunk().Choices {
			if c.Delta == nil {
				continue
			}
			for _, p := range c.Delta.Parts {
				switch p := p.(type) {
				case llm.TextPart:
					fmt.Fprint(out, p.Text)
				case llm.ReasoningPart:
					if showReasoning {
						fmt.Fprint(cmd.ErrOrStderr(), p.Reasoning)
					}
				}
			}
		}
	}
	fmt.Fprintln(out)
	if err := s.Err(); err != nil {
		return err
	}
	printUsage(cmd.ErrOrStderr(), s.Usage())
	return nil
}

func printMessage(w io.Writer, m llm.UIMessage, showReasoning bool) {
	for _, p := range m.Parts {
		switch p := p.(type) {
		case llm.ReasoningPart:
			if showReasoning {
				fmt.Fprintf(w, "[reasoning] %s\n", p.Reasoning)
			}
		case llm.TextPart:
			fmt.Fprintln(w, p.Text)
		case llm.ImagePart:
			fmt.Fprintf(w, "[image] %d bytes\n", len(p.URL))
		case llm.ToolCallPart:
			fmt.Fprintf(w, "[tool call] %s %s\n", p.ToolName, p.Arguments)
		}
	}
	for _, a := range m.Annotations {
		if c, ok := a.(llm.URLCitation); ok {
			fmt.Fprintf(w, "[source] %s %s\n", c.Title, c.URL)
		}
	}
}

func printUsage(w io.Writer, u *llm.TokenUsage) {
	if u == nil {
		return
	}
	fmt.Fprintf(w, "tokens: prompt=%d completion=%d cached=%d total=%d\n", u.PromptTokens, u.CompletionTokens, u.CachedTokens, u.TotalTokens)
}
