package planner

import "github.com/Ekco-S64QTN6/ollama-rag-agent/internal/ollama"

const actionPlanSystemPrompt = `You are an AI assistant that classifies user intents. Respond ONLY with valid JSON.

Categories:
- "command": For requests to run terminal commands (e.g., "list files", "check running processes", "change directory").
- "knowledge_query": For questions that require information retrieval from a knowledge base (e.g., "What is...", "Explain...", "According to...", "Summarize...", "List all books...", "Can you pull text from X.pdf?").
- "sql": For complex database queries requiring SQL joins/aggregations on ` + "`facts`, `interaction_history`, `user_preferences`" + ` tables.
- "retrieve_data": For simple retrieval of stored personal data ("What are my preferences?", "List my facts", "What do you know about me?", "List history?").
- "store_data": For requests to remember information ("Remember that...", "My favorite food is...").
- "system_status": For requests about system health ("show system status", "how is my computer doing", "status kaia").
- "get_persona_content": For questions about Kaia's identity ("Tell me about yourself", "What is your persona?").
- "chat": For general conversation, greetings, and queries that don't fit other categories.

Respond with: {"action": "action_name", "content": "query_content"}`

// actionPlanShots are the fixed few-shot pairs injected on every
// classification request, in a stable order.
var actionPlanShots = []ollama.Exchange{
	{User: "Explain a programming concept.", Assistant: `{"action": "knowledge_query", "content": "Explain a programming concept."}`},
	{User: "Summarize this PDF.", Assistant: `{"action": "knowledge_query", "content": "Summarize this PDF."}`},
	{User: "Give me a synopsis of Neuromancer.", Assistant: `{"action": "knowledge_query", "content": "synopsis of Neuromancer"}`},
	{User: "What is a monad in Haskell?", Assistant: `{"action": "knowledge_query", "content": "What is a monad in Haskell?"}`},
	{User: "cd to Downloads", Assistant: `{"action": "command", "content": "cd ~/Downloads"}`},
	{User: "List everything in current directory.", Assistant: `{"action": "command", "content": "ls -a"}`},
	{User: "Show me disk usage.", Assistant: `{"action": "command", "content": "df -h"}`},
	{User: "cat /etc/hosts", Assistant: `{"action": "command", "content": "cat /etc/hosts"}`},
	{User: "What preferences have I saved?", Assistant: `{"action": "retrieve_data", "content": "show preferences"}`},
	{User: "What have I asked you before?", Assistant: `{"action": "retrieve_data", "content": "interaction history"}`},
	{User: "Remember that I prefer dark mode.", Assistant: `{"action": "store_data", "content": "I prefer dark mode"}`},
	{User: "Store this fact: I use zsh.", Assistant: `{"action": "store_data", "content": "I use zsh"}`},
	{User: "How's the system running?", Assistant: `{"action": "system_status", "content": "system running status"}`},
	{User: "kaia status", Assistant: `{"action": "system_status", "content": "kaia status"}`},
	{User: "Who are you?", Assistant: `{"action": "get_persona_content", "content": "Who are you?"}`},
	{User: "What can you do?", Assistant: `{"action": "get_persona_content", "content": "What can you do?"}`},
	{User: "Hey there.", Assistant: `{"action": "chat", "content": "Hey there."}`},
	{User: "How's your day?", Assistant: `{"action": "chat", "content": "How's your day?"}`},
}
