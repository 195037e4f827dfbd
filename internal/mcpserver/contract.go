package mcpserver

// EntryFormatContract describes the JSON entry shape that LLM consumers
// should follow when saving or importing entries.
const EntryFormatContract = `# Wellbeing Entry Format

An entry records one day's self-assessment. There is at most one entry per
calendar date; saving a date that already has an entry updates it.

## Structure

` + "```" + `json
{
  "id": 12,
  "date": "2024-01-08",
  "phase": "clarity",
  "metrics": {
    "relationalTone": 7,
    "operationalReadiness": 6.5,
    "boundaryPressure": 4,
    "boundaryIntegrity": 8,
    "agency": 7,
    "clarity": 9
  },
  "createdAt": "2024-01-08T19:02:11Z",
  "updatedAt": "2024-01-08T19:05:40Z"
}
` + "```" + `

## Rules

1. **` + "`" + `date` + "`" + ` is required** and is a calendar date in ` + "`" + `YYYY-MM-DD` + "`" + ` form.
2. **` + "`" + `phase` + "`" + ` is required** and is one of ` + "`" + `awareness` + "`" + ` (weeks 1–6),
   ` + "`" + `clarity` + "`" + ` (7–12), ` + "`" + `strength` + "`" + ` (13–18), ` + "`" + `ownership` + "`" + ` (19–25).
3. **Metrics** are numbers from 0 to 10 inclusive; fractions are allowed. Values
   outside the range are rejected, never clamped.
4. **Missing metrics are unanswered**, not zero. Leave a metric out rather than
   sending 0 when the question was skipped. When updating, omitted metrics keep
   their stored value.
5. **` + "`" + `id` + "`" + `, ` + "`" + `createdAt` + "`" + ` and ` + "`" + `updatedAt` + "`" + `** are assigned by the store. On import an
   ` + "`" + `id` + "`" + ` that already exists replaces that entry; timestamps are kept when present.
6. **Imports** are a JSON array of entries and are all-or-nothing: one invalid
   entry rejects the whole file.

## Scoring

The entry score is the mean of the metrics that are present. Period averages
skip absent metrics and entries with no metrics at all.
`

const entryFormatURI = "wellbeing://entry-format"
