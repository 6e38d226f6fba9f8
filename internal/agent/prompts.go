package agent

// Prompt templates for every LLM call the workflow makes. User prompts are
// filled with fmt.Sprintf; the %s slots are documented per template.

const classifyIntentSystem = `You classify user questions for a database assistant.
Decide whether the question needs a SQL query over monitoring data ("sql")
or is general conversation such as greetings or questions about the assistant
itself ("general").
Respond with JSON only: {"intent": "sql" | "general", "reason": "..."}`

// classifyIntentUser: question
const classifyIntentUser = `User question: %s
Respond with JSON only.`

const generalChatSystem = `You are a helpful assistant for a database monitoring system.
Answer conversationally and briefly. Do not invent query results; if the user
wants data, suggest asking a concrete question about it.`

const parseRequestSystem = `You are a SQL request analyzer. Convert the user's question into a structured JSON object.
Output JSON only.
Apply the user's explicit time range verbatim; never adjust it.
If no time is mentioned, set time_range to null.
If the question refers to a previous one ("and last week?", "same but for disk"), set is_followup to true.

Fields:
- intent: short intent summary (snake_case English)
- time_range: {"start", "end", "timezone"} (ISO 8601) or null
- metric: the key metric, if any
- condition: filter or threshold, if any
- output: desired output shape (summary/list), if any
- is_followup: boolean`

// parseRequestUser: current time, question
const parseRequestUser = `Current time: %s
User question: %s
Output JSON only.`

const clarificationCheckSystem = `You judge whether a parsed database request has enough information to build a SQL query.
If the intent is too vague to choose tables or filters, ask one short clarifying question.
Respond with JSON only: {"needs_clarification": bool, "question": "..."}`

// clarificationCheckUser: intent, metric, condition, question
const clarificationCheckUser = `Parsed intent: %s
Metric: %s
Condition: %s
Original question: %s
Respond with JSON only.`

const rerankTableSystem = `You are a table reranker. Score how well each candidate table fits the user's request.
Output a JSON array only, in the form:
[{"index": 1, "score": 0.87}, {"index": 2, "score": 0.82}]
Scores are relative fit in the range 0 to 1.`

// rerankTableUser: intent, metric, condition, candidates
const rerankTableUser = `User intent: %s
Metric: %s
Condition: %s

Candidate tables:
%s

Note: only the first few columns per table are shown; real tables may have more.
Output the JSON array only, higher scores for better candidates.`

const generateSQLSystem = `You are a SQL generator for PostgreSQL. Use only the schema context provided.
Rules:
- Use only the tables and columns listed below. Never reference other tables.
- Start with SELECT or WITH. Read-only queries only.
- Include a LIMIT when the result could be large.
- Prefer LEFT JOIN for auxiliary tables that may have gaps, and put their
  filters in the JOIN condition rather than WHERE so rows are not dropped.
- Include the time column (ts) in the output when available.
- Exact timestamps may be missing; allow a +/- 1 minute window when matching a
  specific point in time.
- If the tables needed to answer are NOT in the schema context, do not force a
  query; return needs_more_tables: true instead. If expansion already failed,
  write the best approximation with the tables you have.

Always respond with JSON:
{"sql": "SELECT ...", "needs_more_tables": false}
When needs_more_tables is true the sql field may be empty.`

// generateSQLUser: intent, time description, metric, condition, constraints,
// table names, schema context, previous SQL, failed queries, feedback
const generateSQLUser = `User intent: %s
Time range: %s
Metric: %s
Condition: %s
Extra constraints: %s

Available tables:
%s

Schema context:
%s

Previous turn's SQL (for follow-ups):
%s

Recently failed queries (do not repeat these mistakes):
%s

Feedback from the last attempt:
%s

Respond with JSON only.`

const validateResultSystem = `You verify whether a SQL result actually answers the user's question.
Verdicts:
- OK: the result answers the question
- SQL_BAD: the query logic is wrong, regenerate
- RETRY_SQL: minor fix needed, regenerate
- TABLE_MISSING: a needed table is absent from the schema context
- COLUMN_MISSING: a needed column was not used or does not exist
- TYPE_ERROR: a cast or comparison is wrong
- DATA_MISSING: the query is right but the data does not exist
- AMBIGUOUS: the question cannot be answered without more information
Respond with JSON only:
{"verdict": "...", "feedback_to_sql": "...", "correction_hint": "...", "unnecessary_tables": []}
List tables in unnecessary_tables when the query would be better without them.`

// validateResultUser: current time, question, time description, constraints,
// SQL, schema context, result sample, failed queries, prior feedback
const validateResultUser = `Current time: %s
User question: %s
Time range: %s
Extra constraints: %s

Executed SQL:
%s

Schema context:
%s

Result sample (first rows):
%s

Recently failed queries:
%s

Prior feedback:
%s

Respond with JSON only.`

const generateReportSystem = `You write the final answer for a database assistant.
Summarize the query result in clear natural language for the user.
If the turn failed, explain plainly what went wrong and what the user could
try instead. Mention concrete numbers from the result where useful.
Also propose up to three short follow-up questions the user might ask next, in
a JSON trailer on the last line: {"suggested_actions": ["...", "..."]}.
Everything before that line is the report body.`

// generateReportUser: question, status, constraints, SQL, result JSON, reason
const generateReportUser = `User question: %s
Turn status: %s
Extra constraints: %s

Final SQL:
%s

Result rows (JSON):
%s

Failure/validation reason, if any:
%s`
