package entity

// Labels is the single enum -> display text table shared by every
// presentation layer. Keys are the wire values.
var Labels = struct {
	BookingStatus        map[BookingStatus]string        `json:"bookingStatus"`
	BookingPaymentStatus map[BookingPaymentStatus]string `json:"bookingPaymentStatus"`
	PaymentStatus        map[PaymentStatus]string        `json:"paymentStatus"`
	PaymentMethod        map[PaymentMethod]string        `json:"paymentMethod"`
}{
	BookingStatus: map[BookingStatus]string{
		BookingStatusPending:   "Chờ xác nhận",
		BookingStatusConfirmed: "Đã xác nhận",
		BookingStatusCancelled: "Đã hủy",
		BookingStatusCompleted: "Hoàn thành",
	},
	BookingPaymentStatus: map[BookingPaymentStatus]string{
		PaymentStatusUnpaid:   "Chưa thanh toán",
		PaymentStatusPaid:     "Đã thanh toán",
		PaymentStatusRefunded: "Đã hoàn tiền",
	},
	PaymentStatus: map[PaymentStatus]string{
		PaymentPending:  "Đang xử lý",
		PaymentSuccess:  "Thành công",
		PaymentFailed:   "Thất bại",
		PaymentRefunded: "Đã hoàn tiền",
	},
	PaymentMethod: map[PaymentMethod]string{
		MethodBankTransfer: "Chuyển khoản ngân hàng",
		MethodCreditCard:   "Thẻ tín dụng",
		MethodCash:         "Tiền mặt",
		MethodEWallet:      "Ví điện tử",
	},
}

func (s BookingStatus) Label() string        { return labelOr(Labels.BookingStatus[s], string(s)) }
func (s BookingPaymentStatus) Label() string { return labelOr(Labels.BookingPaymentStatus[s], string(s)) }
func (s PaymentStatus) Label() string        { return labelOr(Labels.PaymentStatus[s], string(s)) }
func (m PaymentMethod) Label() string        { return labelOr(Labels.PaymentMethod[m], string(m)) }

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
