// Package cli implements the interactive patient management menu.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maruel/healthsys/internal/errors"
	"github.com/maruel/healthsys/internal/models"
	"github.com/maruel/healthsys/internal/storage"
	"github.com/maruel/healthsys/internal/utils"
)

const (
	system  = "[Sistema]\n"
	user    = "[Usuario]\n"
	heading = "ID CPF Nome Idade Data_Cadastro\n"
)

// historyEntries is the number of saves listed by the history command.
const historyEntries = 10

// Session is one interactive run of the menu over a PatientStore.
//
// Input is line oriented. The session saves the store only when the user
// quits with Q.
type Session struct {
	store   *storage.PatientStore
	in      *bufio.Scanner
	out     io.Writer
	term    Terminal
	history *storage.History
	changed <-chan struct{}
	format  bool
}

// Option configures a Session.
type Option func(*Session)

// WithTerminal sets the terminal used by the clear command.
func WithTerminal(t Terminal) Option {
	return func(s *Session) { s.term = t }
}

// WithHistory enables the history command.
func WithHistory(h *storage.History) Option {
	return func(s *Session) { s.history = h }
}

// WithChanges makes the session warn the user whenever a value is received on
// ch, typically storage.Watcher.Changed.
func WithChanges(ch <-chan struct{}) Option {
	return func(s *Session) { s.changed = ch }
}

// WithInputFormatting punctuates digit-only CPF and date input.
func WithInputFormatting(enabled bool) Option {
	return func(s *Session) { s.format = enabled }
}

// NewSession returns a session reading commands from in and writing to out.
func NewSession(store *storage.PatientStore, in io.Reader, out io.Writer, opts ...Option) *Session {
	s := &Session{store: store, in: bufio.NewScanner(in), out: out}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes commands until the user quits. Quitting saves the store; a
// failed save is returned.
//
// It returns io.ErrUnexpectedEOF when the input ends before Q, without
// saving, and ctx.Err() when ctx is canceled between commands.
func (s *Session) Run(ctx context.Context) error {
	s.printf("HealthSys Log in!\n\nBem Vindo ao sistema de gerenciamento de clientes!\n")
	s.printUnsaved()
	s.printMenu()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.warnChanges()
		s.printf("\n" + user)
		choice, err := s.readToken()
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "Menu choice", "choice", choice)
		switch strings.ToUpper(choice) {
		case "1":
			err = s.consult()
		case "2":
			err = s.update(ctx)
		case "3":
			err = s.remove(ctx)
		case "4":
			err = s.add(ctx)
		case "5":
			s.printf("\nImprimindo todos os pacientes...\n")
			s.printPatients(s.store.List())
		case "6":
			if s.term != nil {
				if err := s.term.Clear(); err != nil {
					slog.WarnContext(ctx, "Failed to clear terminal", "err", err)
				}
			}
		case "H":
			if s.history == nil {
				s.printf("Opção inválida, tente novamente.\n")
				break
			}
			err = s.showHistory(ctx)
		case "Q":
			return s.quit(ctx)
		default:
			s.printf("Opção inválida, tente novamente.\n")
		}
		if err != nil {
			return err
		}
		s.printf("\n")
		s.printMenu()
	}
}

func (s *Session) printMenu() {
	s.printf(system +
		"Como gostaria de proceder?\n" +
		"1 - Consultar pacientes\n" +
		"2 - Atualizar pacientes\n" +
		"3 - Remover pacientes\n" +
		"4 - Adicionar pacientes\n" +
		"5 - Imprimir todos os pacientes\n" +
		"6 - Limpar terminal\n")
	if s.history != nil {
		s.printf("H - Histórico de salvamentos\n")
	}
	s.printf("Q - Sair do sistema\n")
}

func (s *Session) consult() error {
	s.printf("\nConsultando pacientes...\n" + system +
		"Escolha o modo de consulta:\n" +
		"1 - Por nome\n" +
		"2 - Por CPF\n" +
		"3 - Retornar ao menu principal\n" +
		"\n" + user)
	mode, err := s.readToken()
	if err != nil {
		return err
	}
	var by storage.SearchField
	switch mode {
	case "1":
		by = storage.SearchByName
		s.printf("\n" + system + "Digite o nome:\n" + user)
	case "2":
		by = storage.SearchByCPF
		s.printf("\n" + system + "Digite o CPF:\n" + user)
	case "3":
		return nil
	default:
		s.printf("Opção inválida, tente novamente.\n")
		return nil
	}
	query, err := s.readLine()
	if err != nil {
		return err
	}
	if by == storage.SearchByCPF {
		query = s.formatCPF(query)
	}
	found := s.store.Search(by, query)
	s.printf(heading)
	for _, p := range found {
		s.printf("%s", p)
	}
	if len(found) == 0 {
		s.printf("Nenhum usuário registrado com essas credenciais.\n")
	}
	return nil
}

func (s *Session) update(ctx context.Context) error {
	s.printf("\n" + system + "Digite o ID do registro a ser atualizado:\n" + user)
	id, ok, err := s.readID()
	if err != nil || !ok {
		return err
	}
	if _, err := s.store.Get(id); err != nil {
		s.printError(err)
		return nil
	}
	s.printf("\n" + system + "Digite o novo valor para os campos CPF (apenas dígitos), Nome, Idade e Data_Cadastro (para manter o valor atual de um campo, digite '-'): \n" + user)
	var values [4]string
	for i := range values {
		if values[i], err = s.readLine(); err != nil {
			return err
		}
	}
	edit := models.PatientEdit{
		CPF:          s.formatCPF(values[0]),
		Name:         values[1],
		Age:          values[2],
		RegisteredAt: s.formatDate(values[3]),
	}
	preview, err := s.store.Preview(id, edit)
	if err != nil {
		s.printError(err)
		return nil
	}
	s.printf(system+"Confirma os novos valores para o registro abaixo? (S/N)\n"+heading+"%s", preview)
	confirmed, err := s.confirm()
	if err != nil {
		return err
	}
	if !confirmed {
		s.printf(system + "Atualização cancelada.\n")
		return nil
	}
	if _, err := s.store.Update(ctx, id, edit); err != nil {
		s.printError(err)
		return nil
	}
	s.printf(system + "Registro atualizado com sucesso.\n")
	return nil
}

func (s *Session) remove(ctx context.Context) error {
	s.printf("\n" + system + "Digite o ID do registro a ser removido:\n" + user)
	id, ok, err := s.readID()
	if err != nil || !ok {
		return err
	}
	p, err := s.store.Get(id)
	if err != nil {
		s.printError(err)
		return nil
	}
	s.printf(system+"Tem certeza de que deseja excluir o registro abaixo? (S/N)\n"+heading+"%s", p)
	confirmed, err := s.confirm()
	if err != nil {
		return err
	}
	if !confirmed {
		s.printf(system + "Remoção cancelada.\n")
		return nil
	}
	if _, err := s.store.Remove(ctx, id); err != nil {
		s.printError(err)
		return nil
	}
	s.printf(system + "Registro removido com sucesso.\n")
	return nil
}

func (s *Session) add(ctx context.Context) error {
	s.printf("\n" + system + "Para inserir um novo registro, digite os valores para os campos:\n\n")
	prompts := [4]string{"CPF (apenas dígitos): ", "Nome: ", "Idade: ", "Data de Cadastro (YYYY-MM-DD): "}
	var values [4]string
	for i, prompt := range prompts {
		s.printf("%s", prompt)
		var err error
		if values[i], err = s.readLine(); err != nil {
			return err
		}
	}
	p := models.Patient{
		ID:           s.store.NextID(),
		CPF:          s.formatCPF(values[0]),
		Name:         values[1],
		RegisteredAt: s.formatDate(values[3]),
	}
	if values[2] != "" {
		age, err := strconv.ParseInt(values[2], 10, 64)
		if err != nil || age < 0 {
			s.printf(system + "Idade inválida.\n")
			return nil
		}
		p.Age = &age
	}
	if err := p.Validate(); err != nil {
		s.printError(err)
		return nil
	}
	s.printf("\n"+system+"Confirma a inserção do registro abaixo? (S/N)\n"+heading+"%s\n"+user, p)
	confirmed, err := s.confirm()
	if err != nil {
		return err
	}
	if !confirmed {
		s.printf(system + "Inserção cancelada.\n")
		return nil
	}
	if _, err := s.store.Add(ctx, p); err != nil {
		s.printError(err)
		return nil
	}
	s.printf(system + "O registro foi inserido com sucesso.\n")
	return nil
}

func (s *Session) showHistory(ctx context.Context) error {
	commits, err := s.history.Log(ctx, historyEntries)
	if err != nil {
		s.printError(err)
		return nil
	}
	s.printf("\n" + system)
	if len(commits) == 0 {
		s.printf("Nenhum salvamento registrado.\n")
		return nil
	}
	for _, c := range commits {
		s.printf("%s %s %s\n", c.Hash[:min(7, len(c.Hash))], c.When.Format("2006-01-02 15:04"), c.Message)
	}
	return nil
}

func (s *Session) quit(ctx context.Context) error {
	s.printf("\nSaindo do sistema...\n")
	if err := s.store.Save(ctx); err != nil {
		s.printf("Erro ao salvar dados no arquivo.\n")
		return err
	}
	s.printf("Dados salvos com sucesso.\n")
	if s.store.HistoryError() != nil {
		s.printf(system + "Aviso: o salvamento não foi registrado no histórico.\n")
	}
	return nil
}

// printUnsaved lists the changes a previous session journaled but never saved.
func (s *Session) printUnsaved() {
	unsaved := s.store.Unsaved()
	if len(unsaved) == 0 {
		return
	}
	s.printf("\n"+system+"Aviso: %d alterações de uma sessão anterior não foram salvas:\n", len(unsaved))
	for _, e := range unsaved {
		label := e.Op
		switch e.Op {
		case storage.OpAdd:
			label = "Inserção"
		case storage.OpUpdate:
			label = "Atualização"
		case storage.OpRemove:
			label = "Remoção"
		}
		s.printf("%s %s: %s", e.Time.Local().Format("2006-01-02 15:04"), label, e.Patient)
	}
	s.printf("\n")
}

func (s *Session) printPatients(patients []models.Patient) {
	s.printf(heading)
	for _, p := range patients {
		s.printf("%s", p)
	}
}

func (s *Session) printError(err error) {
	switch errors.CodeOf(err) {
	case errors.CodeNotFound:
		s.printf(system + "ID inválido.\n")
	case errors.CodeInvalidValue:
		s.printf(system+"Valor inválido: %v\n", err)
	default:
		s.printf(system+"Erro: %v\n", err)
	}
}

// warnChanges drains the change notification, if any.
func (s *Session) warnChanges() {
	select {
	case _, ok := <-s.changed:
		if ok {
			s.printf("\n" + system + "Aviso: o arquivo de pacientes foi modificado por outro programa. " +
				"Ao sair, essas alterações serão sobrescritas.\n")
		}
	default:
	}
}

// readLine returns the next input line without surrounding spaces.
func (s *Session) readLine() (string, error) {
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

// readToken returns the first word of the next non-blank line.
func (s *Session) readToken() (string, error) {
	for {
		line, err := s.readLine()
		if err != nil {
			return "", err
		}
		if f := strings.Fields(line); len(f) != 0 {
			return f[0], nil
		}
	}
}

// readID reads a patient ID. ok is false when the input is not a number, in
// which case the user has been told.
func (s *Session) readID() (id int64, ok bool, err error) {
	token, err := s.readToken()
	if err != nil {
		return 0, false, err
	}
	id, err = strconv.ParseInt(token, 10, 64)
	if err != nil {
		s.printf(system + "ID inválido.\n")
		return 0, false, nil
	}
	return id, true, nil
}

func (s *Session) confirm() (bool, error) {
	answer, err := s.readLine()
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "S"), nil
}

func (s *Session) formatCPF(v string) string {
	if !s.format {
		return v
	}
	return utils.FormatCPF(v)
}

func (s *Session) formatDate(v string) string {
	if !s.format {
		return v
	}
	return utils.FormatDate(v)
}

func (s *Session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
