package sql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-seed/pkg/identity"
	"github.com/ekaya-inc/ekaya-seed/pkg/models"
)

// backendRun is one job position with one bank holding one question and two
// options, the first correct.
func backendRun(t *testing.T) *models.SeedRun {
	t.Helper()
	run := models.NewSeedRun()

	jp, err := models.NewJobPosition("Backend Engineer", "")
	require.NoError(t, err)
	jpRef, err := run.AddJobPosition(jp)
	require.NoError(t, err)

	bank, err := models.NewQuestionBank(jpRef, "Core Concepts", models.LevelMedium)
	require.NoError(t, err)
	bankRef, err := run.AddQuestionBank(bank)
	require.NoError(t, err)

	right, err := models.NewOption("A lightweight thread", true)
	require.NoError(t, err)
	wrong, err := models.NewOption("A package manager", false)
	require.NoError(t, err)
	q, err := models.NewQuestion(bankRef, "What is a goroutine?", []models.Option{right, wrong})
	require.NoError(t, err)
	_, err = run.AddQuestion(q)
	require.NoError(t, err)
	return run
}

func assign(t *testing.T, run *models.SeedRun, mode models.IDMode) *identity.Assignment {
	t.Helper()
	s, err := identity.NewStrategy(mode)
	require.NoError(t, err)
	a, err := s.Assign(run)
	require.NoError(t, err)
	return a
}

const backendScript = `INSERT INTO job_positions (id, title, description) VALUES (1, 'Backend Engineer', NULL);
INSERT INTO question_banks (id, job_position_id, name, level) VALUES (1, 1, 'Core Concepts', 'medium');
INSERT INTO questions (id, question_bank_id, text, position) VALUES (1, 1, 'What is a goroutine?', 1);
INSERT INTO options (id, question_id, text, is_correct, position) VALUES
  (1, 1, 'A lightweight thread', TRUE, 1),
  (2, 1, 'A package manager', FALSE, 2);
`

func TestValidate_ScenarioA_FourStatements(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)

	report := NewSeedValidator(models.DialectMySQL, a).Validate(backendScript)

	require.Empty(t, report.Defects)
	require.True(t, report.OK())
	assert.Equal(t, 5, report.Rows)
	assert.Equal(t, []string{
		"INSERT INTO `job_positions` (`id`,`title`,`description`) VALUES (1,'Backend Engineer',NULL);",
		"INSERT INTO `question_banks` (`id`,`job_position_id`,`name`,`level`) VALUES (1,1,'Core Concepts','medium');",
		"INSERT INTO `questions` (`id`,`question_bank_id`,`text`,`position`) VALUES (1,1,'What is a goroutine?',1);",
		"INSERT INTO `options` (`id`,`question_id`,`text`,`is_correct`,`position`) VALUES (1,1,'A lightweight thread',TRUE,1),(2,1,'A package manager',FALSE,2);",
	}, report.Statements)
	assert.Equal(t, strings.Join(report.Statements, "\n")+"\n", report.Script)
}

func TestValidate_ScenarioB_DanglingReference(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := strings.Replace(backendScript,
		"VALUES (1, 1, 'Core Concepts'", "VALUES (1, 99, 'Core Concepts'", 1)

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Len(t, report.Defects, 1)
	d := report.Defects[0]
	assert.Equal(t, models.DefectDanglingReference, d.Kind)
	assert.Equal(t, "question_banks", d.Table)
	assert.Equal(t, "job_position_id", d.Column)
	assert.Equal(t, "99", d.Value)
	assert.Equal(t, 2, d.Line)
	assert.Empty(t, report.Script)
	assert.Empty(t, report.Statements)
	assert.False(t, report.OK())
}

func TestValidate_ScenarioC_DuplicateKey(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := backendScript +
		"INSERT INTO options (id, question_id, text, is_correct, position) VALUES (2, 1, 'A package manager', FALSE, 2);\n"

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Len(t, report.Defects, 1)
	d := report.Defects[0]
	assert.Equal(t, models.DefectDuplicateKey, d.Kind)
	assert.Equal(t, "options", d.Table)
	assert.Equal(t, "2", d.Value)
	assert.Equal(t, 7, d.Line)
	assert.Empty(t, report.Script)
}

func TestValidate_ScenarioD_ProseAndUnexpectedFence(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	response := "Sure! Here is the seed script you asked for.\n" +
		"It follows the MySQL rules.\n\n" +
		"<<<SQL\n" + backendScript + ">>>\n"

	report := NewSeedValidator(models.DialectMySQL, a).Validate(response)

	require.Len(t, report.Defects, 1)
	d := report.Defects[0]
	assert.Equal(t, models.DefectUnparseableFragment, d.Kind)
	assert.Equal(t, 1, d.Line)
	assert.Contains(t, d.Snippet, "Sure! Here is the seed script")
	assert.Equal(t, 5, report.Rows, "all statements are still recovered and checked")
	assert.Empty(t, report.Script, "a defect withholds the whole script")
}

func TestValidate_MarkdownFenceAndSessionControl(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	response := "```sql\nSTART TRANSACTION;\nSET FOREIGN_KEY_CHECKS=0;\n-- seed data\n" +
		backendScript + "SET FOREIGN_KEY_CHECKS=1;\nCOMMIT;\n```\n"

	report := NewSeedValidator(models.DialectMySQL, a).Validate(response)

	require.Empty(t, report.Defects)
	assert.Len(t, report.Statements, 4)
}

func TestValidate_JSONEnvelope(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	response := fmt.Sprintf(`<think>planning</think>{"dialect":"mysql","notes":"ok","tables":["job_positions"],"full_sql":%q}`,
		backendScript)

	report := NewSeedValidator(models.DialectMySQL, a).Validate(response)

	require.Empty(t, report.Defects)
	assert.Len(t, report.Statements, 4)
}

func TestValidate_ReordersRowsByAssignment(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := `INSERT INTO options (id, question_id, text, is_correct, position) VALUES (2, 1, 'A package manager', FALSE, 2), (1, 1, 'A lightweight thread', TRUE, 1);
INSERT INTO questions (id, question_bank_id, text, position) VALUES (1, 1, 'What is a goroutine?', 1);
INSERT INTO question_banks (id, job_position_id, name, level) VALUES (1, 1, 'Core Concepts', 'medium');
INSERT INTO job_positions (id, title) VALUES (1, 'Backend Engineer');`

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Empty(t, report.Defects)
	require.Len(t, report.Statements, 4)
	assert.Contains(t, report.Statements[0], "`job_positions`")
	assert.Contains(t, report.Statements[0], "(1,'Backend Engineer',NULL)")
	assert.Contains(t, report.Statements[3], "VALUES (1,1,'A lightweight thread',TRUE,1),(2,1,'A package manager',FALSE,2)")
}

func TestValidate_MissingSemicolonsAndQualifiedNames(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := `INSERT INTO [dbo].[job_positions] ([id], [title], [description]) VALUES (1, N'Backend Engineer', NULL)
INSERT INTO [dbo].[question_banks] ([id], [job_position_id], [name], [level]) VALUES (1, 1, N'Core Concepts', N'medium')
GO
INSERT INTO [dbo].[questions] ([id], [question_bank_id], [text], [position]) VALUES (1, 1, N'What is a goroutine?', 1)
INSERT INTO [dbo].[options] ([id], [question_id], [text], [is_correct], [position]) VALUES (1, 1, N'A lightweight thread', 1, 1), (2, 1, N'A package manager', 0, 2)
GO`

	report := NewSeedValidator(models.DialectSQLServer, a).Validate(script)

	require.Empty(t, report.Defects)
	assert.Equal(t, []string{
		"SET IDENTITY_INSERT [job_positions] ON;",
		"INSERT INTO [job_positions] ([id],[title],[description]) VALUES (1,N'Backend Engineer',NULL);",
		"SET IDENTITY_INSERT [job_positions] OFF;",
		"SET IDENTITY_INSERT [question_banks] ON;",
		"INSERT INTO [question_banks] ([id],[job_position_id],[name],[level]) VALUES (1,1,N'Core Concepts',N'medium');",
		"SET IDENTITY_INSERT [question_banks] OFF;",
		"SET IDENTITY_INSERT [questions] ON;",
		"INSERT INTO [questions] ([id],[question_bank_id],[text],[position]) VALUES (1,1,N'What is a goroutine?',1);",
		"SET IDENTITY_INSERT [questions] OFF;",
		"SET IDENTITY_INSERT [options] ON;",
		"INSERT INTO [options] ([id],[question_id],[text],[is_correct],[position]) VALUES (1,1,N'A lightweight thread',1,1),(2,1,N'A package manager',0,2);",
		"SET IDENTITY_INSERT [options] OFF;",
	}, report.Statements)
}

func TestValidate_PostgreSQLNormalization(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := strings.ReplaceAll(backendScript, "'Backend Engineer'", `E'Backend Engineer\'s role'`)
	script = strings.ReplaceAll(script, "TRUE", "1")
	script = strings.ReplaceAll(script, "FALSE", "'false'")

	report := NewSeedValidator(models.DialectPostgreSQL, a).Validate(script)

	require.Empty(t, report.Defects)
	require.Len(t, report.Statements, 8)
	assert.Equal(t,
		`INSERT INTO "job_positions" ("id","title","description") VALUES (1,'Backend Engineer''s role',NULL);`,
		report.Statements[0])
	assert.Equal(t,
		`SELECT setval(pg_get_serial_sequence('"job_positions"', 'id'), (SELECT MAX("id") FROM "job_positions"));`,
		report.Statements[1])
	assert.Contains(t, report.Statements[6], "(1,1,'A lightweight thread',TRUE,1),(2,1,'A package manager',FALSE,2)")
}

func TestValidate_UUIDMode(t *testing.T) {
	run := backendRun(t)
	a := assign(t, run, models.IDModeUUID)

	id := func(et models.EntityType, i int) string { return a.IDs(et)[i] }
	script := fmt.Sprintf(`INSERT INTO job_positions (id, title) VALUES ('%s', 'Backend Engineer');
INSERT INTO question_banks (id, job_position_id, name, level) VALUES ('%s', '%s', 'Core Concepts', 'medium');
INSERT INTO questions (id, question_bank_id, text, position) VALUES ('%s'::uuid, '%s', 'What is a goroutine?', 1);
INSERT INTO options (id, question_id, text, is_correct, position) VALUES ('%s', '%s', 'A lightweight thread', TRUE, 1), ('%s', '%s', 'A package manager', FALSE, 2);`,
		strings.ToUpper(id(models.EntityJobPosition, 0)),
		id(models.EntityQuestionBank, 0), id(models.EntityJobPosition, 0),
		id(models.EntityQuestion, 0), id(models.EntityQuestionBank, 0),
		id(models.EntityOption, 0), id(models.EntityQuestion, 0),
		id(models.EntityOption, 1), id(models.EntityQuestion, 0))

	report := NewSeedValidator(models.DialectPostgreSQL, a).Validate(script)

	require.Empty(t, report.Defects)
	require.Len(t, report.Statements, 4, "no setval in uuid mode")
	assert.Contains(t, report.Statements[0], fmt.Sprintf("('%s','Backend Engineer',NULL)", id(models.EntityJobPosition, 0)))
}

func TestValidate_UUIDModeRejectsIntegers(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeUUID)

	report := NewSeedValidator(models.DialectMySQL, a).Validate(backendScript)

	assert.NotZero(t, report.Count(models.DefectShapeMismatch))
	assert.Empty(t, report.Script)
}

func TestValidate_WrongParent(t *testing.T) {
	run := models.NewSeedRun()
	var jps []models.Ref
	for _, title := range []string{"Backend Engineer", "Data Analyst"} {
		jp, err := models.NewJobPosition(title, "")
		require.NoError(t, err)
		ref, err := run.AddJobPosition(jp)
		require.NoError(t, err)
		jps = append(jps, ref)
	}
	bank, err := models.NewQuestionBank(jps[0], "Core Concepts", models.LevelLow)
	require.NoError(t, err)
	_, err = run.AddQuestionBank(bank)
	require.NoError(t, err)
	a := assign(t, run, models.IDModeAutoincrement)

	script := `INSERT INTO job_positions (id, title) VALUES (1, 'Backend Engineer'), (2, 'Data Analyst');
INSERT INTO question_banks (id, job_position_id, name, level) VALUES (1, 2, 'Core Concepts', 'low');`

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Len(t, report.Defects, 1)
	assert.Equal(t, models.DefectDanglingReference, report.Defects[0].Kind)
	assert.Contains(t, report.Defects[0].Message, "expected 1")
}

func TestValidate_UnassignedAndMissingRows(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := strings.Replace(backendScript, "(2, 1, 'A package manager'", "(3, 1, 'A package manager'", 1)

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Len(t, report.Defects, 2)
	assert.Equal(t, models.DefectUnassignedKey, report.Defects[0].Kind)
	assert.Equal(t, "3", report.Defects[0].Value)
	assert.Equal(t, models.DefectMissingRow, report.Defects[1].Kind)
	assert.Equal(t, "options", report.Defects[1].Table)
	assert.Equal(t, "2", report.Defects[1].Value)
}

func TestValidate_ShapeMismatches(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)

	tests := []struct {
		name    string
		replace [2]string
		column  string
	}{
		{"unknown table", [2]string{"INSERT INTO questions ", "INSERT INTO quizzes "}, ""},
		{"unknown column", [2]string{"(id, question_bank_id, text, position)", "(id, question_bank_id, body, position)"}, "body"},
		{"missing required column", [2]string{"(id, question_bank_id, text, position) VALUES (1, 1, 'What is a goroutine?', 1)", "(id, question_bank_id, text) VALUES (1, 1, 'What is a goroutine?')"}, "position"},
		{"value count", [2]string{"(1, 1, 'What is a goroutine?', 1)", "(1, 1, 'What is a goroutine?')"}, ""},
		{"generated id", [2]string{"(1, 'Backend Engineer', NULL)", "(DEFAULT, 'Backend Engineer', NULL)"}, "id"},
		{"number for text", [2]string{"'Core Concepts'", "42"}, "name"},
		{"null for required", [2]string{"'What is a goroutine?'", "NULL"}, "text"},
		{"bad boolean", [2]string{"TRUE, 1)", "'yes', 1)"}, "is_correct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := strings.Replace(backendScript, tt.replace[0], tt.replace[1], 1)
			require.NotEqual(t, backendScript, script)

			report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

			require.NotZero(t, report.Count(models.DefectShapeMismatch), "defects: %v", report.Defects)
			assert.Empty(t, report.Script)
			if tt.column != "" {
				found := false
				for _, d := range report.Defects {
					found = found || d.Column == tt.column
				}
				assert.True(t, found, "expected a defect on column %s: %v", tt.column, report.Defects)
			}
		})
	}
}

func TestValidate_UnparseableInsert(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	script := backendScript + "INSERT INTO options VALUES oops;\n"

	report := NewSeedValidator(models.DialectMySQL, a).Validate(script)

	require.Len(t, report.Defects, 1)
	assert.Equal(t, models.DefectUnparseableFragment, report.Defects[0].Kind)
	assert.Contains(t, report.Defects[0].Message, "cannot parse INSERT")
	assert.Equal(t, 7, report.Defects[0].Line)
}

func TestValidate_EmptyResponseReportsMissingRows(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)

	report := NewSeedValidator(models.DialectMySQL, a).Validate("")

	assert.Equal(t, 5, report.Count(models.DefectMissingRow))
	assert.False(t, report.OK())
}

func TestValidate_SQLServerChunksLargeTables(t *testing.T) {
	run := models.NewSeedRun()
	jp, err := models.NewJobPosition("Backend Engineer", "")
	require.NoError(t, err)
	jpRef, err := run.AddJobPosition(jp)
	require.NoError(t, err)
	bank, err := models.NewQuestionBank(jpRef, "Core Concepts", models.LevelHigh)
	require.NoError(t, err)
	bankRef, err := run.AddQuestionBank(bank)
	require.NoError(t, err)

	const questions = 1001
	var sb strings.Builder
	sb.WriteString("INSERT INTO job_positions (id, title) VALUES (1, 'Backend Engineer');\n")
	sb.WriteString("INSERT INTO question_banks (id, job_position_id, name, level) VALUES (1, 1, 'Core Concepts', 'high');\n")
	for i := 1; i <= questions; i++ {
		opt, err := models.NewOption("yes", true)
		require.NoError(t, err)
		q, err := models.NewQuestion(bankRef, fmt.Sprintf("question %d", i), []models.Option{opt})
		require.NoError(t, err)
		_, err = run.AddQuestion(q)
		require.NoError(t, err)
		sb.WriteString(fmt.Sprintf("INSERT INTO questions (id, question_bank_id, text, position) VALUES (%d, 1, 'question %d', %d);\n", i, i, i))
		sb.WriteString(fmt.Sprintf("INSERT INTO options (id, question_id, text, is_correct, position) VALUES (%d, %d, 'yes', 1, 1);\n", i, i))
	}
	a := assign(t, run, models.IDModeAutoincrement)

	report := NewSeedValidator(models.DialectSQLServer, a).Validate(sb.String())

	require.Empty(t, report.Defects)
	inserts := 0
	for _, s := range report.Statements {
		if strings.HasPrefix(s, "INSERT INTO [questions]") {
			inserts++
		}
	}
	assert.Equal(t, 2, inserts)
}

func TestValidate_BackslashesFollowDialect(t *testing.T) {
	tests := []struct {
		name        string
		dialect     models.Dialect
		description string
		wantRow     string
	}{
		{
			name:        "postgresql keeps windows path",
			dialect:     models.DialectPostgreSQL,
			description: `'C:\\share'`,
			wantRow:     `(1,'Backend Engineer','C:\\share')`,
		},
		{
			name:        "sqlserver accepts trailing backslash",
			dialect:     models.DialectSQLServer,
			description: `N'ends with \'`,
			wantRow:     `(1,N'Backend Engineer',N'ends with \')`,
		},
		{
			name:        "mysql decodes and re-escapes",
			dialect:     models.DialectMySQL,
			description: `'C:\\share'`,
			wantRow:     `(1,'Backend Engineer','C:\\share')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assign(t, backendRun(t), models.IDModeAutoincrement)
			script := strings.Replace(backendScript,
				"VALUES (1, 'Backend Engineer', NULL)", "VALUES (1, 'Backend Engineer', "+tt.description+")", 1)

			report := NewSeedValidator(tt.dialect, a).Validate(script)

			require.Empty(t, report.Defects)
			require.NotEmpty(t, report.Statements)
			found := false
			for _, s := range report.Statements {
				if strings.Contains(s, tt.wantRow) {
					found = true
				}
			}
			assert.True(t, found, "no statement contains %s", tt.wantRow)
		})
	}
}

func TestValidate_TripleQuoteFence(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	response := "Here is the seed script.\n" +
		`"""sql` + "\n" +
		backendScript +
		`"""` + "\n"

	report := NewSeedValidator(models.DialectMySQL, a).Validate(response)

	require.Len(t, report.Defects, 1)
	assert.Equal(t, models.DefectUnparseableFragment, report.Defects[0].Kind)
	assert.Equal(t, 1, report.Defects[0].Line)
	assert.Equal(t, 5, report.Rows)
}

func TestValidate_ProseAroundJSONEnvelope(t *testing.T) {
	a := assign(t, backendRun(t), models.IDModeAutoincrement)
	response := "Here is the script in the format you asked for:\n" +
		"```json\n" +
		fmt.Sprintf(`{"dialect":"mysql","full_sql":%q}`, backendScript) + "\n" +
		"```\n" +
		"Let me know if anything should change."

	report := NewSeedValidator(models.DialectMySQL, a).Validate(response)

	require.Len(t, report.Defects, 2)
	for _, d := range report.Defects {
		assert.Equal(t, models.DefectUnparseableFragment, d.Kind)
	}
	assert.Equal(t, 1, report.Defects[0].Line)
	assert.Contains(t, report.Defects[0].Snippet, "Here is the script")
	assert.Equal(t, 5, report.Defects[1].Line)
	assert.Contains(t, report.Defects[1].Snippet, "Let me know")
	assert.Equal(t, 5, report.Rows, "the envelope is still checked")
	assert.Empty(t, report.Script)
}
